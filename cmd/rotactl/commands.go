package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/novacriatura/rota/internal/app"
	"github.com/novacriatura/rota/internal/assignments"
	"github.com/novacriatura/rota/internal/audit"
	"github.com/novacriatura/rota/internal/calendar"
	"github.com/novacriatura/rota/internal/catalog"
)

func today() string {
	return calendar.FromTime(time.Now()).String()
}

func (c *cli) allocateCommand() *cobra.Command {
	var member, date string
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Draw a card for a member on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd.Context(), func(_ *app.Config, svc *app.Services) error {
				result, err := svc.Assignments.Allocate(cmd.Context(), assignments.AllocateRequest{Member: member, Date: date})
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(result)
				}
				suffix := ""
				if result.IsRepeated {
					suffix = " (repeated)"
				}
				fmt.Fprintf(c.stdout, "%s %s: %s%s\n", result.Assignment.Date, result.Assignment.Member, result.Role.Title, suffix)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&member, "member", "", "member name")
	cmd.Flags().StringVar(&date, "date", today(), "meeting date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func (c *cli) scheduleCommand() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the programme of a meeting",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := calendar.Parse(date)
			if err != nil {
				return err
			}
			return c.withServices(cmd.Context(), func(_ *app.Config, svc *app.Services) error {
				view, err := svc.Schedules.ForDate(cmd.Context(), d)
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(view)
				}
				tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "%s (%s) %s\n", view.Date, view.Weekday, view.Time)
				fmt.Fprintf(tw, "Oração\t%s\n", view.Roles.Oracao)
				fmt.Fprintf(tw, "Louvor\t%s\n", view.Roles.Louvor)
				fmt.Fprintf(tw, "Dinâmica\t%s\n", view.Roles.Dinamica)
				fmt.Fprintf(tw, "Visão\t%s\n", view.Roles.Visao)
				fmt.Fprintf(tw, "Facilitação\t%s\n", view.Roles.Facilitacao)
				fmt.Fprintf(tw, "Oferta\t%s\n", view.Roles.Oferta)
				fmt.Fprintf(tw, "Comunhão\t%s\n", strings.Join(view.Roles.Comunhao, ", "))
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", today(), "meeting date (YYYY-MM-DD)")
	return cmd
}

func (c *cli) historyCommand() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd.Context(), func(_ *app.Config, svc *app.Services) error {
				var (
					rows []assignments.Assignment
					err  error
				)
				if date != "" {
					d, perr := calendar.Parse(date)
					if perr != nil {
						return perr
					}
					rows, err = svc.Assignments.ForDate(cmd.Context(), d)
				} else {
					rows, err = svc.Assignments.All(cmd.Context())
				}
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(rows)
				}
				tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DATE\tMEMBER\tCARD")
				for _, a := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Date, a.Member, a.RoleID)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "only this date (YYYY-MM-DD)")
	return cmd
}

func (c *cli) resetCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every recorded assignment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset deletes the whole history; pass --yes to confirm")
			}
			return c.withServices(cmd.Context(), func(_ *app.Config, svc *app.Services) error {
				removed, err := svc.Assignments.Reset(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "removed %d assignments\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func (c *cli) auditCommand() *cobra.Command {
	var csvOutput bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check the history against the catalog rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd.Context(), func(_ *app.Config, svc *app.Services) error {
				report, err := svc.Audit.Run(cmd.Context())
				if err != nil {
					return err
				}
				switch {
				case csvOutput:
					err = audit.WriteCSV(c.stdout, report)
				case c.jsonOutput:
					err = c.printJSON(report)
				default:
					fmt.Fprintf(c.stdout, "%d assignments, %d findings\n", report.Totals.Assignments, len(report.Findings))
					for _, f := range report.Findings {
						fmt.Fprintf(c.stdout, "%s %-7s %s: %s\n", f.Date, f.Severity, f.Kind, f.Detail)
					}
				}
				if err != nil {
					return err
				}
				if !report.OK() {
					return errors.New("audit found errors")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&csvOutput, "csv", false, "print findings as CSV")
	return cmd
}

func (c *cli) catalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the card catalog",
	}
	var path string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a catalog file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cat *catalog.Catalog
				err error
			)
			if path == "" {
				cat, err = catalog.Default()
			} else {
				cat, err = catalog.LoadFile(path)
			}
			if err != nil {
				return err
			}
			restricted := 0
			for _, m := range cat.Members() {
				if cat.Restricted(m) {
					restricted++
				}
			}
			if c.jsonOutput {
				return c.printJSON(map[string]int{
					"cards":      len(cat.Roles()),
					"members":    len(cat.Members()),
					"restricted": restricted,
				})
			}
			fmt.Fprintf(c.stdout, "catalog ok: %d cards, %d members, %d restricted\n", len(cat.Roles()), len(cat.Members()), restricted)
			return nil
		},
	}
	validate.Flags().StringVar(&path, "path", "", "catalog YAML file (default: embedded catalog)")
	cmd.AddCommand(validate)
	return cmd
}
