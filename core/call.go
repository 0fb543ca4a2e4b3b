package core

import (
	"fmt"
	"reflect"
)

var typeError = reflect.TypeOf((*error)(nil)).Elem()

// CheckFactory validates that f can be used as a factory.
//
// The f must be a function with the dependencies as arguments,
// and the created object as its first result. The function can
// return an error as last result optionally.
func CheckFactory(f interface{}) error {
	val := reflect.ValueOf(f)
	if val.Kind() != reflect.Func {
		return fmt.Errorf("%w: non-func %T", ErrInvalidFactory, f)
	}
	typ := val.Type()
	numRets := typ.NumOut()
	if numRets > 0 && typ.Out(numRets-1) == typeError {
		numRets--
	}
	if numRets != 1 {
		return fmt.Errorf(
			"%w: func %s must return exactly one object",
			ErrInvalidFactory, typ)
	}
	return nil
}

// Call invokes the factory f with args matched positionally
// to its parameters, returning the created object.
//
// Panics raised by f are recovered and returned as errors, so
// that a failed factory never leaves its name resolving.
func Call(f interface{}, args []interface{}) (result interface{}, err error) {
	if err := CheckFactory(f); err != nil {
		return nil, err
	}
	val := reflect.ValueOf(f)
	typ := val.Type()
	in, err := convertArgs(typ, args)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("factory panicked: %v", r)
		}
	}()
	out := val.Call(in)
	if n := len(out); n > 1 {
		err, _ = out[n-1].Interface().(error)
	}
	if err != nil {
		return nil, err
	}
	return out[0].Interface(), nil
}

func convertArgs(typ reflect.Type, args []interface{}) ([]reflect.Value, error) {
	numIn := typ.NumIn()
	fixed := numIn
	if typ.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, fmt.Errorf(
				"%w: func %s requires at least %d arguments, got %d",
				ErrInvalidFactory, typ, fixed, len(args))
		}
	} else if len(args) != numIn {
		return nil, fmt.Errorf(
			"%w: func %s requires %d arguments, got %d",
			ErrInvalidFactory, typ, numIn, len(args))
	}
	in := make([]reflect.Value, 0, len(args))
	for i, arg := range args {
		var argTyp reflect.Type
		if i < fixed {
			argTyp = typ.In(i)
		} else {
			argTyp = typ.In(numIn - 1).Elem()
		}
		val, err := convertArg(arg, argTyp)
		if err != nil {
			return nil, fmt.Errorf("argument #%d: %w", i, err)
		}
		in = append(in, val)
	}
	return in, nil
}

func convertArg(arg interface{}, typ reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(typ), nil
	}
	val := reflect.ValueOf(arg)
	if val.Type().AssignableTo(typ) {
		return val, nil
	}
	// XXX: integers are convertible to strings in golang, which
	// would silently turn a number into a rune, so refuse it.
	if typ.Kind() != reflect.String && val.Type().ConvertibleTo(typ) {
		return val.Convert(typ), nil
	}
	return reflect.Value{}, fmt.Errorf(
		"%w: cannot use %T as %s", ErrInvalidFactory, arg, typ)
}
