package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jaiminpan/myosotis/canon"
	"github.com/jaiminpan/myosotis/compactor"
	"github.com/jaiminpan/myosotis/memory"
	"github.com/jaiminpan/myosotis/node"
	"github.com/jaiminpan/myosotis/storage"
)

func newRootCmd(log zerolog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "myo",
		Short: "Inspect and edit a myosotis store file",
	}

	root.AddCommand(
		newInitCmd(),
		newHistoryCmd(),
		newCreateCmd(),
		newSetCmd(),
		newDeleteFieldCmd(),
		newDeleteNodeCmd(),
		newCommitCmd(),
		newShowCmd(),
		newCompactCmd(log),
	)
	return root
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <file>",
		Short: "Create a new, empty store file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			if storage.Exists(file) {
				fmt.Printf("File already exists: %s\n", file)
				return nil
			}
			if err := storage.Save(file, memory.New()); err != nil {
				return err
			}
			fmt.Printf("Initialized new memory at %s\n", file)
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <file>",
		Short: "List every commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := storage.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Println("Commit history:")
			for _, c := range m.Commits {
				msg := "<no message>"
				if c.Message != nil {
					msg = *c.Message
				}
				fmt.Printf("  %d  %s  %s  (%d mutation(s))\n", c.ID, canon.Abbreviate(c.Hash), msg, len(c.Mutations))
			}
			return nil
		},
	}
}

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <file> <type>",
		Short: "Create a new node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, ty := args[0], args[1]
			m, err := loadOrNew(file)
			if err != nil {
				return err
			}
			id := m.Create(ty)
			if err := storage.Save(file, m); err != nil {
				return err
			}
			fmt.Printf("Created node %d of type %q in %s\n", id, ty, file)
			return nil
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <file> <id> <key> <value>",
		Short: "Set a string field on a node",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, key, value := args[0], args[2], args[3]
			id, err := parseNodeID(args[1])
			if err != nil {
				return err
			}
			m, err := storage.Load(file)
			if err != nil {
				return err
			}
			if err := m.Set(id, key, node.StrValue(value)); err != nil {
				return err
			}
			if err := storage.Save(file, m); err != nil {
				return err
			}
			fmt.Printf("Set node %d field %q = %q\n", id, key, value)
			return nil
		},
	}
}

func newDeleteFieldCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-field <file> <id> <key>",
		Short: "Remove a field from a node",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, key := args[0], args[2]
			id, err := parseNodeID(args[1])
			if err != nil {
				return err
			}
			m, err := storage.Load(file)
			if err != nil {
				return err
			}
			if err := m.DeleteField(id, key); err != nil {
				return err
			}
			if err := storage.Save(file, m); err != nil {
				return err
			}
			fmt.Printf("Deleted field %q from node %d\n", key, id)
			return nil
		},
	}
}

func newDeleteNodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-node <file> <id>",
		Short: "Tombstone a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			id, err := parseNodeID(args[1])
			if err != nil {
				return err
			}
			m, err := storage.Load(file)
			if err != nil {
				return err
			}
			if err := m.DeleteNode(id); err != nil {
				return err
			}
			if err := storage.Save(file, m); err != nil {
				return err
			}
			fmt.Printf("Deleted node %d\n", id)
			return nil
		},
	}
}

func newCommitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit <file> <message>",
		Short: "Freeze pending edits into a new commit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, message := args[0], args[1]
			m, err := storage.Load(file)
			if err != nil {
				return err
			}
			if err := m.Commit(&message); err != nil {
				return err
			}
			if err := storage.Save(file, m); err != nil {
				return err
			}
			last := m.Commits[len(m.Commits)-1]
			fmt.Printf("Committed %d with message %q\n", last.ID, message)
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	var at uint64
	var hasAt bool

	cmd := &cobra.Command{
		Use:   "show <file> <id>",
		Short: "Print a node's fields, at head or at a historical commit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			id, err := parseNodeID(args[1])
			if err != nil {
				return err
			}
			m, err := storage.Load(file)
			if err != nil {
				return err
			}

			var state map[node.NodeID]node.Node
			if hasAt {
				state, err = m.StateAtCommit(at)
				if err != nil {
					return err
				}
			} else {
				state = m.Head()
			}

			n, ok := state[id]
			if !ok {
				if hasAt {
					fmt.Printf("Node %d not found in commit %d\n", id, at)
				} else {
					fmt.Printf("Node %d not found in current state\n", id)
				}
				return nil
			}
			if hasAt {
				fmt.Printf("Node %d @ commit %d:\n", id, at)
			} else {
				fmt.Printf("Node %d (current):\n", id)
			}
			fmt.Printf("  type: %s\n", n.Type)
			fmt.Printf("  deleted: %t\n", n.Deleted)
			fmt.Println("  fields:")
			for k, v := range n.Fields {
				fmt.Printf("    %s: %v\n", k, v)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&at, "at", 0, "show the node as of this commit id rather than head")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		hasAt = cmd.Flags().Changed("at")
	}
	return cmd
}

func newCompactCmd(log zerolog.Logger) *cobra.Command {
	var at uint64
	var hasAt bool

	cmd := &cobra.Command{
		Use:   "compact <file>",
		Short: "Collapse history up to a commit into a new genesis snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			var target *uint64
			if hasAt {
				target = &at
			}
			if err := compactor.Compact(file, target, log); err != nil {
				return err
			}
			fmt.Printf("Compacted %s\n", file)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&at, "at", 0, "compact up to this commit id rather than the latest checkpoint")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		hasAt = cmd.Flags().Changed("at")
	}
	return cmd
}

func loadOrNew(file string) (*memory.Memory, error) {
	if storage.Exists(file) {
		return storage.Load(file)
	}
	return memory.New(), nil
}

func parseNodeID(s string) (node.NodeID, error) {
	var id uint64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid node id %q", s)
	}
	return id, nil
}

