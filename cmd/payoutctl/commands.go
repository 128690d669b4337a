package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kinads-controlplane/services/payout"
)

func newRunCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the payout cycle for a date",
		Long: `Run the payout cycle for --date (YYYYMMDD). Without --date the date
the scheduler would pay today is used. Apps already paid for the date are
skipped. Funds only move when APP_ENV is production and PAYOUT.PRODUCTION
is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d deps) error {
				if date == "" {
					date = payout.PayoutDate(time.Now(), d.Config.Payout.DayDelay)
				}

				summary, err := d.Executor.Run(cmd.Context(), date)
				if summary != nil {
					if perr := printJSON(cmd.OutOrStdout(), summary); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "payout date as YYYYMMDD")
	return cmd
}

func newReserveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reserve",
		Short: "Show the dollar reserve of KIN already bought",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d deps) error {
				reserve, err := d.Executor.Reserve(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), reserve.StringFixed(2))
				return err
			})
		},
	}
}

func newWalletCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wallet",
		Short: "Show the hot wallet balance and address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d deps) error {
				status, err := d.Executor.WalletStatus(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), status)
			})
		},
	}
}
