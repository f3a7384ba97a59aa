// Package statemachine provides a small transition-table validator for
// states that live in the database rather than in memory.
//
// Unlike a stateful FSM, the machine here holds no current state: rows
// own their state, and the machine only answers whether a proposed
// transition is legal. The dispute lifecycle uses it to reject
// out-of-order processor deliveries.
package statemachine
