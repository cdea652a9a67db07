package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewDoneCommand creates the done command.
func NewDoneCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "done <chat-id>",
		Short: "Toggle a conversation's done marker",
		Long: "Marks a conversation done, moving it out of the open tab; running\n" +
			"it again reopens the conversation.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setupApp(cmd, opts)
			if err != nil {
				return err
			}
			defer e.close()

			done, err := e.store.ToggleDone(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "toggle done", err)
			}
			if done {
				return e.out.Success(fmt.Sprintf("chat %s marked done", args[0]))
			}
			return e.out.Success(fmt.Sprintf("chat %s reopened", args[0]))
		},
	}
}

// NewBucketCommand creates the bucket command group.
func NewBucketCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Manage conversation buckets",
	}
	cmd.AddCommand(newBucketListCommand(opts))
	cmd.AddCommand(newBucketAddCommand(opts))
	cmd.AddCommand(newBucketAssignCommand(opts))
	return cmd
}

func newBucketListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setupApp(cmd, opts)
			if err != nil {
				return err
			}
			defer e.close()

			buckets, err := e.store.Buckets(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "list buckets", err)
			}
			return e.out.Success(strings.Join(buckets, "\n"))
		},
	}
}

func newBucketAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Create a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setupApp(cmd, opts)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.store.AddBucket(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitCommandError, "add bucket", err)
			}
			return e.out.Success(fmt.Sprintf("bucket %s created", args[0]))
		},
	}
}

func newBucketAssignCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <chat-id> <bucket>",
		Short: "Move a conversation into a bucket",
		Long: "Moves a conversation into the named bucket. Assigning to 'open'\n" +
			"returns it to the default tab.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setupApp(cmd, opts)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.store.AssignBucket(cmd.Context(), args[0], args[1]); err != nil {
				e.out.Error(err.Error())
				return WrapExitError(ExitCommandError, "assign bucket", err)
			}
			return e.out.Success(fmt.Sprintf("chat %s assigned to %s", args[0], args[1]))
		},
	}
}
