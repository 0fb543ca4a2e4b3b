// Package serpent provides a way to combine the rely container
// with github.com/spf13/cobra nicely, so that the dependencies of
// a monolithic CLI can be populated along the command path and
// resolved by the executed command.
package serpent

import (
	"context"
	"errors"

	"github.com/aegistudio/rely"
	"github.com/spf13/cobra"
)

// Names of the dependencies provided for the executed command.
const (
	CommandName = "command"
	ArgsName    = "args"
	ContextName = "context"
)

type commandOptionKey struct{}

type commandOptionValue struct {
	options []rely.Option
	setups  []Executor
}

// retrieveOptionValue attempts to retrieve option value from the
// context. It returns the error when the command is not executed
// with serpent.ExecuteContext or serpent.Execute.
func retrieveOptionValue(cmd *cobra.Command) (*commandOptionValue, error) {
	dstCtx := context.Background()
	if ctx := cmd.Context(); ctx != nil {
		dstCtx = ctx
	}
	value, ok := dstCtx.Value(commandOptionKey{}).(*commandOptionValue)
	if !ok {
		return nil, errors.New(
			"must execute command with serpent.Execute or serpent.ExecuteContext")
	}
	return value, nil
}

// ExecuteContext sets up the command context and executes the
// command, the options are used to create the container.
func ExecuteContext(
	ctx context.Context, cmd *cobra.Command, options ...rely.Option,
) error {
	ctx = context.WithValue(ctx, commandOptionKey{}, &commandOptionValue{
		options: options,
	})
	return cmd.ExecuteContext(ctx)
}

// Execute sets up the command context and executes the command.
func Execute(cmd *cobra.Command, options ...rely.Option) error {
	return ExecuteContext(context.Background(), cmd, options...)
}

// AddOption attempts add container options to the current command.
func AddOption(cmd *cobra.Command, options ...rely.Option) error {
	value, err := retrieveOptionValue(cmd)
	if err != nil {
		return err
	}
	value.options = append(value.options, options...)
	return nil
}

// Executor is the executor for this command. We usually attach
// the executor's corresponding methods to cobra.Command's RunE
// or PreRunE field.
//
// When PreRunE is attached, the executor populates the container
// for subcommands under its directory. Actually the execution is
// not based on the cobra's, and we require the user to ensure at
// least the path from the executed command to the root command
// is managed by the serpent.
//
// When RunE is attached, the command creates the container with
// all previously added options, populates it with the executors
// up to this node, and executes itself with it.
type Executor func(c *rely.Container) error

func (e Executor) PreRunE(cmd *cobra.Command, args []string) error {
	value, err := retrieveOptionValue(cmd)
	if err != nil {
		return err
	}
	value.setups = append(value.setups, e)
	return nil
}

func (e Executor) RunE(cmd *cobra.Command, args []string) error {
	// XXX: see also Command.execute in cobra/command.go.
	//
	// Only the nearest PersistentPreRun function will be executed,
	// so we will simply forward the invoke a further step before
	// executing logics here. The parents are visited from the
	// nearest one, so their setups are applied in reverse.
	value, err := retrieveOptionValue(cmd)
	if err != nil {
		return err
	}
	numSetups := len(value.setups)
	for p := cmd.Parent(); p != nil; p = p.Parent() {
		if f := p.PreRunE; f != nil {
			if err := f(cmd, args); err != nil {
				return err
			}
		} else if f := p.PreRun; f != nil {
			f(cmd, args)
		}
	}
	c := rely.New(value.options...)
	if err := c.SetupBulk(map[string]interface{}{
		CommandName: rely.Literal(cmd),
		ArgsName:    rely.Literal(args),
		ContextName: rely.Literal(cmd.Context()),
	}); err != nil {
		return err
	}
	setups := make([]Executor, 0, len(value.setups))
	for i := len(value.setups) - 1; i >= numSetups; i-- {
		setups = append(setups, value.setups[i])
	}
	setups = append(setups, value.setups[:numSetups]...)
	for _, setup := range setups {
		if err := setup(c); err != nil {
			return err
		}
	}
	return e(c)
}
