package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"seqthink/internal/thinking"
)

// SequentialThinkingName is the tool name advertised over MCP.
const SequentialThinkingName = "sequential_thinking"

const sequentialThinkingDescription = `A detailed tool for dynamic and reflective problem-solving through thoughts.
This tool helps analyze problems through a flexible thinking process that can adapt and evolve.
Each thought can build on, question, or revise previous insights as understanding deepens.

When to use this tool:
- Breaking down complex problems into steps
- Planning and design with room for revision
- Analysis that might need course correction
- Problems where the full scope might not be clear initially
- Problems that require a multi-step solution
- Tasks that need to maintain context over multiple steps
- Situations where irrelevant information needs to be filtered out

Key features:
- You can adjust totalThoughts up or down as you progress
- You can question or revise previous thoughts
- You can add more thoughts even after reaching what seemed like the end
- You can express uncertainty and explore alternative approaches
- Not every thought needs to build linearly - you can branch or backtrack
- Generates a solution hypothesis
- Verifies the hypothesis based on the Chain of Thought steps
- Repeats the process until satisfied
- Provides a correct answer

You should:
1. Start with an initial estimate of needed thoughts, but be ready to adjust
2. Feel free to question or revise previous thoughts
3. Don't hesitate to add more thoughts if needed, even at the "end"
4. Express uncertainty when present
5. Mark thoughts that revise previous thinking or branch into new paths
6. Ignore information that is irrelevant to the current step
7. Generate a solution hypothesis when appropriate
8. Verify the hypothesis based on the Chain of Thought steps
9. Repeat the process until satisfied with the solution
10. Provide a single, ideally correct answer as the final output
11. Only set nextThoughtNeeded to false when truly done and a satisfactory answer is reached`

func intPtr(v int) *int { return &v }

// sequentialThinkingSchema mirrors the field rules enforced by thinking.StepInput.
func sequentialThinkingSchema() ToolSchema {
	return ToolSchema{
		Type: "object",
		Properties: map[string]Property{
			"thought":           {Type: "string", Description: "Your current thinking step", MinLength: intPtr(1)},
			"thoughtNumber":     {Type: "integer", Description: "Current thought number", Minimum: intPtr(1)},
			"totalThoughts":     {Type: "integer", Description: "Estimated total thoughts needed", Minimum: intPtr(1)},
			"nextThoughtNeeded": {Type: "boolean", Description: "Whether another thought step is needed"},
			"isRevision":        {Type: "boolean", Description: "Whether this revises previous thinking"},
			"revisesThought":    {Type: "integer", Description: "Which thought is being reconsidered", Minimum: intPtr(1)},
			"branchFromThought": {Type: "integer", Description: "Branching point thought number", Minimum: intPtr(1)},
			"branchId":          {Type: "string", Description: "Branch identifier", MinLength: intPtr(1)},
			"needsMoreThoughts": {Type: "boolean", Description: "If more thoughts are needed"},
		},
		Required: []string{"thought", "thoughtNumber", "totalThoughts", "nextThoughtNeeded"},
	}
}

// NewSequentialThinkingTool exposes p as the sequential_thinking tool.
// Rejected and failed steps come back as error results carrying the
// failure JSON; the call itself still succeeds.
func NewSequentialThinkingTool(p *thinking.Processor) *Tool {
	return &Tool{
		Name:        SequentialThinkingName,
		Description: sequentialThinkingDescription,
		Schema:      sequentialThinkingSchema(),
		Execute: func(ctx context.Context, args json.RawMessage) (Output, error) {
			resp := p.Handle(ctx, args)
			body, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return Output{}, fmt.Errorf("failed to encode thinking response: %w", err)
			}
			return Output{Text: string(body), IsError: resp.Failed()}, nil
		},
	}
}
