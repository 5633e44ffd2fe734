package register

import (
	"context"
	"fmt"

	"github.com/keelhaul-sec/keelhaul/internal/shell"
)

// ReturnRegisterPayload is the payload name the go-based reader executes.
// The payload takes a register identifier as its argument and returns that
// register's value (as captured at payload entry) as its exit code.
const ReturnRegisterPayload = "return_register"

// PayloadRunner deploys and executes a named payload, returning its exit
// code and raw console output. The payload package's Registry satisfies it.
type PayloadRunner interface {
	Run(ctx context.Context, name string, args ...uint64) (uint64, string, error)
	Has(name string) bool
}

// GoReader reads registers by executing the return_register payload via
// the go command. Unlike the crash strategies it neither resets the target
// nor spams the console, but it needs payload deployment permission and a
// registered payload binary for the target architecture.
type GoReader struct {
	d      *shell.Dispatcher
	runner PayloadRunner
}

func NewGoReader(d *shell.Dispatcher, runner PayloadRunner) *GoReader {
	return &GoReader{d: d, runner: runner}
}

func (r *GoReader) Name() string { return "go_return_register" }

func (r *GoReader) Available(ctx context.Context) (bool, error) {
	if !r.d.AllowDeploy() || r.runner == nil || !r.runner.Has(ReturnRegisterPayload) {
		return false, nil
	}
	return r.d.HasCommand(ctx, "go")
}

func (r *GoReader) Read(ctx context.Context, reg string) (uint64, error) {
	if !r.d.AllowDeploy() {
		return 0, &shell.PermissionError{
			Operation: "payload-based register reading",
			Flag:      "--allow-deploy",
		}
	}
	if r.runner == nil || !r.runner.Has(ReturnRegisterPayload) {
		return 0, fmt.Errorf("no %s payload registered for %s", ReturnRegisterPayload, r.d.Arch().Name())
	}

	canonical, err := r.d.Arch().Register(reg)
	if err != nil {
		return 0, err
	}
	value, _, err := r.runner.Run(ctx, ReturnRegisterPayload, uint64(canonical.Ident))
	return value, err
}
