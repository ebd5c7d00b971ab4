package client

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// Bind populates the exported func-typed fields of target (a pointer to
// struct) with forwarding closures over this client, one per field,
// generated once at bind time. The field name is the remote method name
// unless an `rpc:"name"` tag overrides it.
//
// Accepted field signatures mirror the serving side:
//
//	func([ctx context.Context,] args...) ([Result][, error])
//
// A stub built this way exposes a fixed, statically known method set;
// there is no runtime interception of arbitrary calls.
func (c *Client) Bind(target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("rpc: bind target must be a pointer to struct, got %T", target)
	}
	elem := v.Elem()
	typ := elem.Type()

	bound := 0
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if field.Type.Kind() != reflect.Func || !field.IsExported() {
			continue
		}
		method := field.Name
		if tag, ok := field.Tag.Lookup("rpc"); ok && tag != "" {
			method = tag
		}
		fn, err := c.forwarder(method, field.Type)
		if err != nil {
			return fmt.Errorf("rpc: field %s: %w", field.Name, err)
		}
		elem.Field(i).Set(fn)
		bound++
	}
	if bound == 0 {
		return fmt.Errorf("rpc: bind target %T has no exported func fields", target)
	}
	return nil
}

// forwarder builds one forwarding closure of the given func type.
func (c *Client) forwarder(method string, ft reflect.Type) (reflect.Value, error) {
	if ft.IsVariadic() {
		return reflect.Value{}, fmt.Errorf("variadic signatures are not forwardable")
	}

	hasCtx := ft.NumIn() > 0 && ft.In(0) == contextType

	var resType reflect.Type
	switch ft.NumOut() {
	case 1:
		if ft.Out(0) != errorType {
			return reflect.Value{}, fmt.Errorf("single return must be error")
		}
	case 2:
		if ft.Out(1) != errorType {
			return reflect.Value{}, fmt.Errorf("second return must be error")
		}
		resType = ft.Out(0)
	default:
		return reflect.Value{}, fmt.Errorf("signature must return (error) or (T, error)")
	}

	return reflect.MakeFunc(ft, func(in []reflect.Value) []reflect.Value {
		ctx := context.Background()
		if hasCtx {
			ctx = in[0].Interface().(context.Context)
			in = in[1:]
		}
		args := make([]any, 0, len(in))
		for _, arg := range in {
			args = append(args, arg.Interface())
		}

		result, err := c.Go(method, args...).Result(ctx)

		outs := make([]reflect.Value, 0, 2)
		if resType != nil {
			resv := reflect.New(resType)
			if err == nil {
				err = json.Unmarshal(result, resv.Interface())
			}
			outs = append(outs, resv.Elem())
		}
		if err != nil {
			outs = append(outs, reflect.ValueOf(&err).Elem())
		} else {
			outs = append(outs, reflect.Zero(errorType))
		}
		return outs
	}), nil
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)
