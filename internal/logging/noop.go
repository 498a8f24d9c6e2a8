package logging

// Noop is a Logger that discards everything. Used in tests and anywhere a
// component is constructed without a configured logging backend.
type Noop struct{}

func (Noop) Debug(string, ...any) {}
func (Noop) Info(string, ...any)  {}
func (Noop) Warn(string, ...any)  {}
func (Noop) Error(string, ...any) {}
func (Noop) Fatal(string, ...any) {}
func (n Noop) With(...any) Logger { return n }
