package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/aegistudio/rely"
	"github.com/aegistudio/rely/internal/ctxlog"
	"github.com/aegistudio/rely/paramnames"
	"github.com/aegistudio/rely/serpent"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newGetCommand(withLogger func(context.Context) context.Context) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "get NAME...",
		Short: "Resolve dependencies and print their values",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = serpent.Executor(func(c *rely.Container) error {
		ctx := withLogger(cmd.Context())
		mode := rely.Sync
		if async {
			mode = rely.Async
		}
		names, err := rely.Resolve[[]string](ctx, c, serpent.ArgsName)
		if err != nil {
			return err
		}
		values, err := c.ResolveMany(ctx, names, mode)
		if err != nil {
			return err
		}
		ctxlog.FromContext(ctx).Debug("resolved dependencies", "count", len(values))
		return printValues(cmd.OutOrStdout(), names, values)
	}).RunE
	cmd.Flags().BoolVar(&async, "async", false,
		"resolve the dependencies concurrently")
	return cmd
}

// printValues prints the values as a YAML document keyed by name.
// Values that are not data, like functions, are printed by type.
func printValues(w io.Writer, names []string, values []interface{}) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for i, name := range names {
		var valueNode yaml.Node
		if err := valueNode.Encode(printable(values[i])); err != nil {
			return fmt.Errorf("encode %q: %w", name, err)
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: name}, &valueNode)
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return err
	}
	return encoder.Close()
}

// printable replaces what yaml cannot encode by its description.
func printable(value interface{}) interface{} {
	switch v := value.(type) {
	case nil, bool, string, int, int64, float64:
		return v
	case []interface{}:
		result := make([]interface{}, 0, len(v))
		for _, elem := range v {
			result = append(result, printable(elem))
		}
		return result
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, elem := range v {
			result[key] = printable(elem)
		}
		return result
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("<%T>", value)
	case reflect.Map:
		if _, ok := value.(map[string]interface{}); !ok {
			return fmt.Sprintf("%v", value)
		}
	}
	if _, err := yaml.Marshal(value); err != nil {
		return fmt.Sprintf("%v", value)
	}
	return value
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the registered dependencies",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = serpent.Executor(func(c *rely.Container) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tSTATE\tENTRY")
		for _, info := range c.Entries() {
			switch info.Name {
			case serpent.CommandName, serpent.ArgsName, serpent.ContextName:
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				info.Name, info.Entry.Kind, info.State, info.Entry)
		}
		return w.Flush()
	}).RunE
	return cmd
}

func newParamsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params FILE",
		Short: "Print the dependency names derived from a factory source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src []byte
			var err error
			if args[0] == "-" {
				src, err = io.ReadAll(cmd.InOrStdin())
			} else {
				src, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			names, err := paramnames.Extract(string(src))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
			return nil
		},
	}
	return cmd
}
