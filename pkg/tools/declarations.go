package tools

import "github.com/whalespump/live-support/pkg/orchestrator"

func eligibilityDeclaration() orchestrator.ToolDeclaration {
	return orchestrator.ToolDeclaration{
		Name:        CheckEligibility,
		Description: "Check which trading package the user is eligible for based on their capital.",
		Parameters: &orchestrator.Schema{
			Type: "OBJECT",
			Properties: map[string]*orchestrator.Schema{
				"capital": {Type: "NUMBER", Description: "The user's available trading capital in USD."},
			},
			Required: []string{"capital"},
		},
	}
}

func profitShareDeclaration() orchestrator.ToolDeclaration {
	return orchestrator.ToolDeclaration{
		Name:        CalculateProfitShare,
		Description: "Calculate the fee split for Option 1 (Share Trading Signal).",
		Parameters: &orchestrator.Schema{
			Type: "OBJECT",
			Properties: map[string]*orchestrator.Schema{
				"profit": {Type: "NUMBER", Description: "The potential profit amount in USD."},
			},
			Required: []string{"profit"},
		},
	}
}

func contactDeclaration() orchestrator.ToolDeclaration {
	return orchestrator.ToolDeclaration{
		Name:        ProvideAdminContact,
		Description: "Trigger this action to display the Admin Telegram ID card on the user's screen. Use this ONLY when the user is verified eligible.",
		Parameters: &orchestrator.Schema{
			Type: "OBJECT",
			Properties: map[string]*orchestrator.Schema{
				"reason": {Type: "STRING", Description: "The reason for providing contact (e.g., 'VIP Purchase' or 'Balance Verified')."},
			},
			Required: []string{"reason"},
		},
	}
}
