// Package yamlengine is a reference rule-evaluation engine backed by YAML
// rule artifacts.
//
// It exists so the runtime can run and be tested end to end without a
// proprietary engine; it implements the same narrow rules.Evaluator contract
// a production engine would. An artifact declares ordered rules with
// conditions over fact fields:
//
//	package: loan-approval
//	default_outcome: approve
//	rules:
//	  - name: reject-minors
//	    outcome: deny
//	    when:
//	      field: age
//	      op: lt
//	      value: 18
//
// Conditions compose with "all" and "any". Supported operators: eq, ne, lt,
// lte, gt, gte, in, contains, exists. Field names address fact fields with
// dotted paths (e.g., "customer.address.country").
package yamlengine
