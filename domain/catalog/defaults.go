package catalog

import "github.com/shopspring/decimal"

// Default returns the built-in candidate models, used when configuration supplies none.
func Default() []ModelDescriptor {
	return []ModelDescriptor{
		{
			ID: "openai/gpt-oss-20b:free",
			Summary: "gpt-oss-20b is an open-weight 21B parameter model released by OpenAI under the Apache 2.0 license.\n" +
				"It uses a Mixture-of-Experts (MoE) architecture with 3.6B active parameters per forward pass,\n" +
				"optimized for lower-latency inference and deployability on consumer or single-GPU hardware.\n" +
				"The model is trained in OpenAI's Harmony response format and supports reasoning level configuration,\n" +
				"fine-tuning, and agentic capabilities including function calling, tool use, and structured outputs.",
			ContextWindow:             131_072,
			TimeToFirstTokenSeconds:   0.40,
			ThroughputTokensPerSecond: 273.2,
		},
		{
			ID: "anthropic/claude-sonnet-4",
			Summary: "Claude Sonnet 4 significantly enhances the capabilities of its predecessor, Sonnet 3.7, excelling in both\n" +
				"coding and reasoning tasks with improved precision and controllability. Achieving state-of-the-art performance\n" +
				"on SWE-bench (72.7%), Sonnet 4 balances capability and computational efficiency, making it suitable for a broad\n" +
				"range of applications from routine coding tasks to complex software development projects. Key enhancements\n" +
				"include improved autonomous codebase navigation, reduced error rates in agent-driven workflows, and increased\n" +
				"reliability in following intricate instructions.",
			ContextWindow:             200_000,
			PriceInputPerMillion:      price("3"),
			PriceOutputPerMillion:     price("15"),
			TimeToFirstTokenSeconds:   20.07,
			ThroughputTokensPerSecond: 57,
		},
		{
			ID: "openai/gpt-5-mini",
			Summary: "GPT-5 Mini is a compact version of GPT-5, designed to handle lighter-weight reasoning tasks. It provides the same\n" +
				"instruction-following and safety-tuning benefits as GPT-5, but with reduced latency and cost. GPT-5 Mini is the\n" +
				"successor to OpenAI's o4-mini model.",
			ContextWindow:             400_000,
			PriceInputPerMillion:      price("0.25"),
			PriceOutputPerMillion:     price("2"),
			TimeToFirstTokenSeconds:   6.84,
			ThroughputTokensPerSecond: 75.59,
		},
	}
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
