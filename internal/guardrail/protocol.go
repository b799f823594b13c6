// Package guardrail holds the workflow-building decision procedure given to
// the model and an auditor that checks a turn's tool calls against it.
package guardrail

// Protocol is the decision order the model must follow before it changes
// the user's workflow. Each step is reached only when the previous one
// does not apply.
const Protocol = `## Workflow building protocol

Follow these steps strictly in order. Move to the next step only when the current one does not apply.

1. Saved skills: call listSkills. If one of the user's skills covers this exact request, load it with getSkill, follow it and stop.
2. Templates: call searchTemplates. If a template matches, load it with getTemplate and go to step 4. Never apply a template without validating it.
3. External reference: use webSearch, then webFetch the page and read it. A search snippet is not a reference. If no usable reference exists, ask the user for clarification. Never invent a plausible-looking workflow.
4. Validation (mandatory, even when you are confident): call validateWorkflow with the candidate workflow. Every node type and every model filename must be installed. If anything is missing, tell the user exactly what to install or select, and stop.
5. Only after validateWorkflow reports the workflow as valid may you call applyWorkflow.`

// CriticalRule is the one instruction repeated on every turn.
const CriticalRule = "Never call applyWorkflow before validateWorkflow has reported the same workflow as valid; if anything is missing, ask the user instead of guessing."
