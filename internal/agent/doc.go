// Package agent routes chat messages. Commands are delegated to the flow
// state machine and the session store; free text goes to the active flow
// first and, for authenticated users without a flow, through the intent
// pipeline (documentation lookup, classification, wallet call, summary).
package agent
