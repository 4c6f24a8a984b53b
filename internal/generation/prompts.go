package generation

import (
	"strings"

	"github.com/digitalex/codeless/internal/markdown"
)

// Generated code is Python; the fence tag doubles as the language marker in
// every prompt.
const languageTag = "python"

const exampleImpl = `from my_interface import MyInterface

class MyInterfaceImpl(MyInterface):
    def __init__(self, message: str):
        super().__init__()
        self._message = message

    def foo(self) -> str:
        return self._message
`

const exampleTest = `import unittest
from my_interface import MyInterface
from my_interface_impl import MyInterfaceImpl

class MyInterfaceTest(unittest.TestCase):
    def setUp(self):
        self._my_interface: MyInterface = MyInterfaceImpl()

    def test_foo_returns_empty_for_empty_input(self):
        self.assertEqual('', self._my_interface.foo(''))

if __name__ == '__main__':
    unittest.main()
`

// buildTestPrompt constructs the instruction for generating a test suite.
// With no prior attempts it emits the initial instruction; otherwise it
// emits the improvement instruction carrying the last attempt's code and
// diagnostic verbatim.
func buildTestPrompt(req TestRequest) string {
	if len(req.PriorAttempts) > 0 {
		return buildTestImprovementPrompt(req)
	}
	return buildTestInitialPrompt(req)
}

func buildTestInitialPrompt(req TestRequest) string {
	var b strings.Builder

	b.WriteString("Generate a test suite for the following code. ")
	b.WriteString("The test suite should be a class that inherits from `unittest.TestCase`, ")
	b.WriteString("and you should assume both the implementation and the interface already exist, ")
	b.WriteString("and they are both in the same directory as the test being generated. ")
	b.WriteString("The `setUp` method always instantiates an implementation of the interface.\n")
	b.WriteString("Here is an example output for a hypothetical interface called `MyInterface`:\n")
	b.WriteString(markdown.Wrap(exampleTest, languageTag))
	b.WriteString("Now generate a test suite in the same style, for testing the interface ")
	b.WriteString("provided below. Make sure to cover edge cases, happy paths and error ")
	b.WriteString("handling:\n\n")
	b.WriteString(markdown.Wrap(req.Interface, languageTag))

	return b.String()
}

func buildTestImprovementPrompt(req TestRequest) string {
	last := lastAttempt(req.PriorAttempts)

	var b strings.Builder
	b.WriteString("Generate a test suite for the following code. ")
	b.WriteString("The test suite should be a class that inherits from `unittest.TestCase`, ")
	b.WriteString("and you should assume both the implementation and the interface already exist, ")
	b.WriteString("and they are both in the same directory as the test being generated. ")
	b.WriteString("The `setUp` method always instantiates an implementation of the interface.\n")
	b.WriteString("Your previous attempt failed. You generated the following test:\n\n")
	b.WriteString(markdown.Wrap(last.Code, languageTag))
	b.WriteString("And this caused the following error:\n\n")
	b.WriteString(markdown.Wrap(last.Errors, ""))
	b.WriteString("Please try again, trying to fix the above errors. ")
	b.WriteString("The code that is being tested is as follows:\n\n")
	b.WriteString(markdown.Wrap(req.Interface, languageTag))

	return b.String()
}

// buildImplPrompt constructs the instruction for generating an
// implementation, choosing initial or improvement mode by prior attempts.
func buildImplPrompt(req ImplRequest) string {
	if len(req.PriorAttempts) > 0 {
		return buildImplImprovementPrompt(req)
	}
	return buildImplInitialPrompt(req)
}

func buildImplInitialPrompt(req ImplRequest) string {
	var b strings.Builder

	b.WriteString("Generate an implementation of the following python interface:\n\n")
	b.WriteString(markdown.Wrap(req.Interface, languageTag))
	b.WriteString("Make sure the name of the class ends with \"Impl\", and it inherits from ")
	b.WriteString("the interface. The code you will generate is *not* an abstract class, ")
	b.WriteString("and does *not* have any `@abstractmethod` annotations. The interface ")
	b.WriteString("itself already exists in the same directory, so do not add it here. ")
	b.WriteString("The test suite that should pass looks like this:\n\n")
	b.WriteString(markdown.Wrap(req.Tests, languageTag))
	b.WriteString("An example implementation might look something like this:\n\n")
	b.WriteString(markdown.Wrap(exampleImpl, languageTag))

	return b.String()
}

func buildImplImprovementPrompt(req ImplRequest) string {
	last := lastAttempt(req.PriorAttempts)

	var b strings.Builder
	b.WriteString("You were previously asked to generate an implementation of the following python interface:\n\n")
	b.WriteString(markdown.Wrap(req.Interface, languageTag))
	b.WriteString("Your response was as follows:\n\n")
	b.WriteString(markdown.Wrap(last.Code, languageTag))
	b.WriteString("Your instructions were to make sure the name of the class ends with \"Impl\", ")
	b.WriteString("and it inherits from the interface. You can assume the interface exists in ")
	b.WriteString("the same directory as the implementation being generated. ")
	b.WriteString("The test suite that was run looks like this:\n\n")
	b.WriteString(markdown.Wrap(req.Tests, languageTag))
	b.WriteString("When the tests were run, the following output indicates some problems:\n\n")
	b.WriteString(markdown.Wrap(last.Errors, ""))
	b.WriteString("Please generate a new implementation according to the same instructions, ")
	b.WriteString("and make sure the problems are addressed so that all tests pass.")

	return b.String()
}
