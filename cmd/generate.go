package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"outreach-mailer/internal/helper"
	"outreach-mailer/internal/models"
	"outreach-mailer/internal/parser"
)

func newGenerateCmd() *cobra.Command {
	var (
		prospectFile  string
		companyFile   string
		prospectName  string
		companyName   string
		salesRep      string
		temperature   float64
		showSummaries bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write one email from a prospect file and a company file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("temperature") {
				temperature = cfg.LLM.Temperature
			}

			ctx := cmd.Context()
			prospect, err := parser.LoadDocument(ctx, prospectFile)
			if err != nil {
				return err
			}
			company, err := parser.LoadDocument(ctx, companyFile)
			if err != nil {
				return err
			}

			gen, err := newGenerator(cfg)
			if err != nil {
				return err
			}

			ctx = helper.ContextWithRequestID(ctx, helper.NewRequestID())
			result, err := gen.GenerateEmail(ctx, models.GenerationRequest{
				ProspectInfo: prospect.Content,
				ProspectName: prospectName,
				CompanyInfo:  company.Content,
				CompanyName:  companyName,
				SalesRep:     salesRep,
				Temperature:  temperature,
			})
			if err != nil {
				return err
			}

			if showSummaries {
				log.Info().Msg("Summaries: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
				helper.PrettyPrint(result)
			}
			log.Info().Msg("Email: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", result.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&prospectFile, "prospect-file", "", "File with information about the prospect")
	cmd.Flags().StringVar(&companyFile, "company-file", "", "File with information about your company")
	cmd.Flags().StringVar(&prospectName, "prospect", "", "Prospect company name")
	cmd.Flags().StringVar(&companyName, "company", "", "Your company name")
	cmd.Flags().StringVar(&salesRep, "sales-rep", "", "Name of the sales rep signing the email")
	cmd.Flags().Float64Var(&temperature, "temperature", models.DefaultTemperature, "Sampling temperature")
	cmd.Flags().BoolVar(&showSummaries, "show-summaries", false, "Print the intermediate chunk summaries")
	for _, name := range []string{"prospect-file", "company-file", "prospect", "company", "sales-rep"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
