// Package harness runs formula scenarios against the real engine.
//
// A scenario loads CUE model and process definitions into a fresh in-memory
// store, starts the engine with a manual scheduler and a recording process
// factory, applies document writes and schedule ticks step by step and then
// checks assertions against the final documents and the trace.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: contact_full_name
//	description: "Full name follows first and last name"
//	models: ../models            # CUE definitions, relative to the scenario file
//	steps:
//	  - insert: Contact
//	    id: c1
//	    fields: { first: Ada, last: Lovelace }
//	  - update: c1
//	    fields: { last: Byron }
//	  - tick: daily
//	assertions:
//	  - type: field_equals
//	    document: c1
//	    field: fullName
//	    expect: "Ada Byron"
//	  - type: write_count
//	    document: c1
//	    field: fullName
//	    count: 2
//	  - type: process_ran
//	    process: nightly-digest
//	    trigger: nightly
//	    count: 1
//
// # Determinism
//
// Each step runs to quiescence before the next one starts: every change
// event a step causes is dispatched, including the events of formula
// write-backs, before its trace is collected. Trace events within one step
// are sorted, so traces compare stably against golden files even though
// the triggers of one event are dispatched concurrently.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/contact.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
