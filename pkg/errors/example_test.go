package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/pql/pkg/errors"
)

// Example demonstrates basic error creation and details.
func Example() {
	err := errors.New(errors.ErrorTypeMalformedRow, "expected 3 fields, got 2").
		WithDetail("line", 2)

	fmt.Println(err.Error())

	// Output:
	// malformed_row: expected 3 fields, got 2
}

// ExampleWrap shows how a low level failure is classified.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeCorruptFile, "reading footer").
		WithDetail("file", "data.pql")

	if errors.IsType(err, errors.ErrorTypeCorruptFile) {
		fmt.Println("corrupt file")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("cause preserved")
	}

	// Output:
	// corrupt file
	// cause preserved
}

// ExampleIsType demonstrates classification through several wrapping layers.
func ExampleIsType() {
	inner := errors.New(errors.ErrorTypeTypeCoercion, `"abc" is not int64`)
	outer := errors.Wrap(fmt.Errorf("row 7: %w", inner), errors.ErrorTypeIO, "convert failed")

	fmt.Println(errors.IsType(outer, errors.ErrorTypeTypeCoercion))
	fmt.Println(errors.IsType(outer, errors.ErrorTypeCorruptFile))
	fmt.Println(errors.TypeOf(outer))

	// Output:
	// true
	// false
	// io
}
