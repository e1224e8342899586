package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
	"github.com/marmos91/fsbroker/pkg/client"
)

const readChunk = 1 << 20

type clientFlags struct {
	addr    string
	timeout time.Duration
}

func newClientCommand() *cobra.Command {
	f := &clientFlags{}

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Issue requests against a running broker",
	}
	cmd.PersistentFlags().StringVarP(&f.addr, "addr", "a", fmt.Sprintf("127.0.0.1:%d", 9093), "broker address")
	cmd.PersistentFlags().DurationVar(&f.timeout, "timeout", 30*time.Second, "per-command timeout")

	cmd.AddCommand(
		nameCommand(f, "mkdirs <path>", "Create a directory and its parents", func(ctx context.Context, c *client.Client, cmd *cobra.Command, name string) error {
			return c.Mkdirs(ctx, name)
		}),
		nameCommand(f, "rmdir <path>", "Remove a directory tree", func(ctx context.Context, c *client.Client, cmd *cobra.Command, name string) error {
			return c.Rmdir(ctx, name)
		}),
		nameCommand(f, "rm <path>", "Remove a file", func(ctx context.Context, c *client.Client, cmd *cobra.Command, name string) error {
			return c.Remove(ctx, name)
		}),
		nameCommand(f, "ls <path>", "List a directory", func(ctx context.Context, c *client.Client, cmd *cobra.Command, name string) error {
			names, err := c.Readdir(ctx, name)
			if err != nil {
				return err
			}
			for _, n := range names {
				cmd.Println(n)
			}
			return nil
		}),
		nameCommand(f, "exists <path>", "Report whether a path exists", func(ctx context.Context, c *client.Client, cmd *cobra.Command, name string) error {
			ok, err := c.Exists(ctx, name)
			if err != nil {
				return err
			}
			cmd.Println(ok)
			return nil
		}),
		nameCommand(f, "length <path>", "Print the size of a file", func(ctx context.Context, c *client.Client, cmd *cobra.Command, name string) error {
			n, err := c.Length(ctx, name)
			if err != nil {
				return err
			}
			cmd.Println(n)
			return nil
		}),
		nameCommand(f, "cat <path>", "Write a file's contents to stdout", catFile),
		newPutCommand(f),
		newRenameCommand(f),
		newStatusCommand(f),
		newShutdownCommand(f),
	)
	return cmd
}

type nameFunc func(ctx context.Context, c *client.Client, cmd *cobra.Command, name string) error

// withClient dials the broker and runs fn with a deadline of f.timeout.
func withClient(cmd *cobra.Command, f *clientFlags, fn func(ctx context.Context, c *client.Client) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	c, err := client.Dial(ctx, f.addr, client.Options{})
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

func nameCommand(f *clientFlags, use, short string, fn nameFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, f, func(ctx context.Context, c *client.Client) error {
				return fn(ctx, c, cmd, args[0])
			})
		},
	}
}

func catFile(ctx context.Context, c *client.Client, cmd *cobra.Command, name string) error {
	fd, err := c.Open(ctx, name, 0)
	if err != nil {
		return err
	}
	defer c.CloseFile(ctx, fd)

	out := cmd.OutOrStdout()
	for {
		_, data, err := c.Read(ctx, fd, readChunk)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return nil
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
	}
}

func newPutCommand(f *clientFlags) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "put <path> [local-file]",
		Short: "Append a local file (or stdin) to a broker file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = cmd.InOrStdin()
			if len(args) == 2 {
				file, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer file.Close()
				src = file
			}

			return withClient(cmd, f, func(ctx context.Context, c *client.Client) error {
				var flags uint32
				if overwrite {
					flags |= types.OpenFlagOverwrite
				}
				fd, err := c.Create(ctx, args[0], flags)
				if err != nil {
					return err
				}
				defer c.CloseFile(ctx, fd)

				buf := make([]byte, readChunk)
				for {
					n, rerr := src.Read(buf)
					if n > 0 {
						if _, err := c.Append(ctx, fd, buf[:n], false); err != nil {
							return err
						}
					}
					if rerr == io.EOF {
						break
					}
					if rerr != nil {
						return rerr
					}
				}
				return c.Flush(ctx, fd)
			})
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "truncate an existing file")
	return cmd
}

func newRenameCommand(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <from> <to>",
		Short: "Rename a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, f, func(ctx context.Context, c *client.Client) error {
				return c.Rename(ctx, args[0], args[1])
			})
		},
	}
}

func newStatusCommand(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the broker status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, f, func(ctx context.Context, c *client.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("%s: %s\n", st.Code, st.Text)
				return nil
			})
		},
	}
}

func newShutdownCommand(f *clientFlags) *cobra.Command {
	var immediate bool

	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Ask the broker to stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, f, func(ctx context.Context, c *client.Client) error {
				return c.Shutdown(ctx, immediate)
			})
		},
	}
	cmd.Flags().BoolVar(&immediate, "immediate", false, "request an immediate stop")
	return cmd
}
