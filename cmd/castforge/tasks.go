package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/castforge/castforge/internal/shell/taskcatalog"
	"github.com/spf13/cobra"
)

func newTasksCmd(a *app) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "tasks [project]",
		Short: "List a project's build tasks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := root
			if len(args) == 1 {
				project, err := a.store.GetProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				dir = project.RootDir
			}
			dir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			tasks, err := taskcatalog.ListTasks(dir)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Printf("no tasks in %s\n", filepath.Join(dir, taskcatalog.CatalogFile))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LABEL\tKIND\tCOMMAND\tBUILD")
			for _, t := range tasks {
				mark := ""
				if t.IsBuildLike() {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Label, t.Kind, t.Command, mark)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "project root directory (ignored when a project name is given)")
	return cmd
}
