package prompts

// ToolLoopFallback is the reply returned when the tool-calling loop
// exhausts its iteration budget without the model producing a plain
// answer. It is a designed terminal state, not an error: the accumulated
// history is still committed.
const ToolLoopFallback = "I wasn't able to finish working through that with the tools available. Could you rephrase or narrow down the question?"
