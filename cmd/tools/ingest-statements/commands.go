package main

import (
	"os"

	"github.com/spf13/cobra"

	"social-support-workers/internal/assessment/signals"
)

var (
	bankInputDir    string
	bankOutputCSV   string
	creditInputDir  string
	creditOutputCSV string
)

var bankStatementsCmd = &cobra.Command{
	Use:   "bank-statements",
	Short: "Merge every bank statement CSV in a directory",
	Long: `Reads each *.csv in --input-dir, unions their columns and writes one CSV.

When the merged table carries Assets and Liabilities columns the totals are
logged the same way the decision pipeline reads them.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		sum, err := consolidate(bankInputDir, bankOutputCSV, []string{".csv"}, log)
		if err != nil || sum.Rows == 0 {
			return err
		}
		return logFinancialTotals(bankOutputCSV)
	},
}

var creditReportsCmd = &cobra.Command{
	Use:   "credit-reports",
	Short: "Merge credit report CSV, JSON lines and xlsx files in a directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := consolidate(creditInputDir, creditOutputCSV, []string{".json", ".csv", ".xlsx"}, log)
		return err
	},
}

func init() {
	bankStatementsCmd.Flags().StringVar(&bankInputDir, "input-dir",
		envOr("BANK_STATEMENTS_DIR", "data/raw/bank_statements"), "directory containing bank statement CSV files")
	bankStatementsCmd.Flags().StringVar(&bankOutputCSV, "output-csv",
		envOr("BANK_STATEMENTS_OUTPUT", "data/processed/bank_statements.csv"), "path of the consolidated CSV")

	creditReportsCmd.Flags().StringVar(&creditInputDir, "input-dir",
		envOr("CREDIT_REPORTS_DIR", "data/raw/credit_reports"), "directory containing credit report files")
	creditReportsCmd.Flags().StringVar(&creditOutputCSV, "output-csv",
		envOr("CREDIT_REPORTS_OUTPUT", "data/processed/credit_reports.csv"), "path of the consolidated CSV")
}

func logFinancialTotals(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data := signals.ParseFinancialTable(f, log)
	if data == (signals.FinancialData{}) {
		return nil
	}
	log.Info("Consolidated financial totals", map[string]interface{}{
		"file":             path,
		"totalAssets":      data.TotalAssets,
		"totalLiabilities": data.TotalLiabilities,
		"netWorth":         data.NetWorth,
	})
	return nil
}
