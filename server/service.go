package server

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// methodType describes one entry of the method table.
type methodType struct {
	method   reflect.Method
	argTypes []reflect.Type // positional params, after receiver and ctx
	hasCtx   bool
	hasErr   bool // last return is error
	hasRes   bool // first return is a result value
}

// service is the immutable method table built once from a capability
// receiver. Exported methods become remotely callable; anything whose
// signature cannot be invoked positionally over JSON is skipped.
type service struct {
	rcvr   reflect.Value
	method map[string]*methodType
}

// newService scans the receiver's exported methods. Accepted signatures:
//
//	func (r *T) Name([ctx context.Context,] p1 P1, ...) ([Result][, error])
//
// at most one non-error result, the error (if any) last.
func newService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil {
		return nil, fmt.Errorf("rpc: capability receiver is nil")
	}
	if typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: capability receiver must be a pointer to struct, got %s", typ)
	}

	svc := &service{
		rcvr:   reflect.ValueOf(rcvr),
		method: make(map[string]*methodType),
	}
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		mt, ok := describeMethod(m)
		if !ok {
			continue
		}
		svc.method[m.Name] = mt
	}
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("rpc: capability receiver %s exposes no callable methods", typ)
	}
	return svc, nil
}

func describeMethod(m reflect.Method) (*methodType, bool) {
	mt := &methodType{method: m}
	t := m.Type

	in := 1 // skip receiver
	if t.NumIn() > in && t.In(in) == contextType {
		mt.hasCtx = true
		in++
	}
	for ; in < t.NumIn(); in++ {
		mt.argTypes = append(mt.argTypes, t.In(in))
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			mt.hasErr = true
		} else {
			mt.hasRes = true
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, false
		}
		mt.hasRes = true
		mt.hasErr = true
	default:
		return nil, false
	}
	return mt, true
}

// names returns the method table's keys, sorted, for directory
// announcements.
func (s *service) names() []string {
	out := make([]string, 0, len(s.method))
	for name := range s.method {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// call decodes params positionally, invokes the method, and encodes the
// result. decodeErr distinguishes malformed params (the caller's fault)
// from a handler failure.
func (s *service) call(ctx context.Context, mt *methodType, params []json.RawMessage) (result json.RawMessage, decodeErr, callErr error) {
	if len(params) != len(mt.argTypes) {
		return nil, fmt.Errorf("%s expects %d params, got %d", mt.method.Name, len(mt.argTypes), len(params)), nil
	}

	args := make([]reflect.Value, 0, 2+len(params))
	args = append(args, s.rcvr)
	if mt.hasCtx {
		args = append(args, reflect.ValueOf(ctx))
	}
	for i, raw := range params {
		argv := reflect.New(mt.argTypes[i])
		if err := json.Unmarshal(raw, argv.Interface()); err != nil {
			return nil, fmt.Errorf("param %d of %s: %w", i, mt.method.Name, err), nil
		}
		args = append(args, argv.Elem())
	}

	outs := mt.method.Func.Call(args)

	if mt.hasErr {
		if errv := outs[len(outs)-1]; !errv.IsNil() {
			return nil, nil, errv.Interface().(error)
		}
	}

	if !mt.hasRes {
		return json.RawMessage("null"), nil, nil
	}
	raw, err := json.Marshal(outs[0].Interface())
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result of %s: %w", mt.method.Name, err)
	}
	return raw, nil, nil
}
