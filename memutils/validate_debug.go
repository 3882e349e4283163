//go:build debug_gfx_core

package memutils

// DebugEnabled is true when the module was built with the debug_gfx_core build tag
const DebugEnabled = true

// DebugValidate calls Validate on checker and panics on error. It does nothing unless the
// debug_gfx_core build tag is present.
func DebugValidate(checker SelfChecker) {
	err := checker.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_gfx_core build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
	err := CheckPow2[T](value, name)
	if err != nil {
		panic(err)
	}
}
