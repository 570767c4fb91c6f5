package prompts

// FallbackReply is returned to the user when the model produces no final
// text within the round budget, or an empty reply.
const FallbackReply = "I ran into an issue while processing your request. Please try again."

// ToolsUnavailableNote is appended to the system prompt when task tools
// are disabled, so the model does not claim to have changed anything.
const ToolsUnavailableNote = `

## Tools are currently unavailable
You cannot read or change the user's tasks right now. Say so if asked to, and do not
pretend an action was taken.`
