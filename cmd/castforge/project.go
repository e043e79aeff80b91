package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/castforge/castforge/internal/core/domain"
	"github.com/spf13/cobra"
)

func newProjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage deployable projects",
	}
	cmd.AddCommand(
		newProjectAddCmd(a),
		newProjectListCmd(a),
		newProjectEditCmd(a),
		newProjectRemoveCmd(a),
	)
	return cmd
}

func newProjectAddCmd(a *app) *cobra.Command {
	var root, signKey, refPackage, output string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(root)
			if err != nil {
				return err
			}
			if output == "" {
				output = filepath.Join(root, args[0]+".pkg")
			}

			project := &domain.Project{
				Name:                args[0],
				RootDir:             root,
				SignKey:             signKey,
				SignPackageLocation: refPackage,
				OutputLocation:      output,
			}
			if err := project.Validate(); err != nil {
				return err
			}
			if err := a.store.CreateProject(cmd.Context(), project); err != nil {
				return err
			}
			fmt.Printf("project %s registered\n", project.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "project root directory")
	cmd.Flags().StringVar(&signKey, "sign-key", "", "signing credential (required)")
	cmd.Flags().StringVar(&refPackage, "ref-package", "", "path to a previously-signed reference package")
	cmd.Flags().StringVar(&output, "output", "", "signed artifact destination (default <root>/<name>.pkg)")
	cmd.MarkFlagRequired("sign-key")

	return cmd
}

func newProjectListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := a.store.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Println("no projects registered")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tROOT\tOUTPUT\tUPDATED")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					p.Name, p.RootDir, p.OutputLocation, p.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func newProjectEditCmd(a *app) *cobra.Command {
	var root, signKey, refPackage, output string

	cmd := &cobra.Command{
		Use:   "edit <name>",
		Short: "Update a project's settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := a.store.GetProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("root") {
				project.RootDir, err = filepath.Abs(root)
				if err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("sign-key") {
				project.SignKey = signKey
			}
			if cmd.Flags().Changed("ref-package") {
				project.SignPackageLocation = refPackage
			}
			if cmd.Flags().Changed("output") {
				project.OutputLocation = output
			}

			if err := project.Validate(); err != nil {
				return err
			}
			if err := a.store.UpdateProject(cmd.Context(), project); err != nil {
				return err
			}
			fmt.Printf("project %s updated\n", project.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "project root directory")
	cmd.Flags().StringVar(&signKey, "sign-key", "", "signing credential")
	cmd.Flags().StringVar(&refPackage, "ref-package", "", "path to a previously-signed reference package")
	cmd.Flags().StringVar(&output, "output", "", "signed artifact destination")

	return cmd
}

func newProjectRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.DeleteProject(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("project %s removed\n", args[0])
			return nil
		},
	}
}
