package cachengine

// Op names a user-facing engine operation for hook dispatch.
type Op string

const (
	OpGet        Op = "get"
	OpSet        Op = "set"
	OpAdd        Op = "add"
	OpDelete     Op = "delete"
	OpIncrement  Op = "increment"
	OpDecrement  Op = "decrement"
	OpClear      Op = "clear"
	OpClearGroup Op = "clearGroup"
)

// Hooks receives callbacks around each user-facing operation: Before exactly
// once, After exactly once. key carries the composed (not logical) key, the
// group name for OpClearGroup, or "" for OpClear. value carries the value or
// counter offset involved; After additionally reports the outcome.
//
// Bulk variants fire the hook pair once per element.
//
// Implementations MUST be cheap and non-blocking - engines call them on hot
// paths. Wrap expensive sinks with hooks/async.
type Hooks interface {
	Before(op Op, key string, value any)
	After(op Op, key string, value any, ok bool)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) Before(Op, string, any)      {}
func (NopHooks) After(Op, string, any, bool) {}
