// Package prompts holds the fixed text the chat loop sends to, or
// substitutes for, the reasoning model.
//
// Prompt text is Go code rather than config because it is program
// logic: the tool names it mentions must match the registry, and tests
// can check that they do.
package prompts
