// Package prompts holds the text templates sent to the oracle.
// Every function is pure: structured input in, text out.
package prompts

import "fmt"

const systemMessage = "You are a pure mathematician who is an expert in the Lean 4 theorem prover. Your job is help your user write Lean proofs.\n" +
	"I want to remind you that we're using Lean 4, not the older Lean 3, and there have been some syntax changes. In particular:\n" +
	"- Type constants are now UpperCamelCase, eg `Nat`, `List`.\n" +
	"- Term constants and variables are now `lowerCamelCase` rather than `snake_case`. For example, we now have `NumberTheory.Divisors.properDivisors instead of `number_theory.divisors.proper_divisors`.\n" +
	"- Pure functions are now written with the syntax `fun x => f x`. The old `λ x, f x` syntax will not work.\n" +
	"- We now enter tactic mode using the `by` keyword. The syntax `begin... end` will not work.\n" +
	"- Instead of being separated by a comma, tactics are separated by a newline. For example, we could write.\n" +
	"```lean\n" +
	"theorem test (p q : Prop) (hp : p) (hq : q) : p ∧ q ∧ p := by\n" +
	"  apply And.intro hp\n" +
	"  exact And.intro hq hp\n" +
	"```\n" +
	"- In the `rw` tactic you must enclose the lemmas in square brackets, even if there is just one. For example `rw h1` is now `rw [h1]`.\n" +
	"- The `induction` tactic now uses a structured format, like pattern matching. For example, in Lean 4 we can write\n" +
	"```lean\n" +
	"theorem zero_add (n : Nat) : 0 + n = n := by\n" +
	"  induction n with\n" +
	"  | zero => rfl\n" +
	"  | succ n ih => rw [Nat.add_succ, ih]\n" +
	"```\n" +
	"  Alternatively you can still use `induction' with x y ih`, like in Lean 3.\n" +
	"- The `cases` tactic now uses a structured format, like pattern matching. For example, in Lean 4 we can write\n" +
	"```lean\n" +
	"example (p q : Prop) : p ∨ q → q ∨ p := by\n" +
	"  intro h\n" +
	"  cases h with\n" +
	"  | inl hp => apply Or.inr; exact hp\n" +
	"  | inr hq => apply Or.inl; exact hq\n" +
	"```\n" +
	"\n" +
	"The following is a description of some commonly used tactics. Of course, feel free to use tactics outside of this list. Remember that it is good style to use high-level automations like `simp` and `ring` instead of manually performing low-level manipulations.\n" +
	"- `abel`: reduces expressions in additive, commutative monoids/groups to a normal form.\n" +
	"- `apply`: the tactic `apply e` matches the current goal against the conclusion of `e`. If it succeeds, the new goal states are the premises of `e`.\n" +
	"- `continuity`: attempts to prove goals of the form `continuous f` by applying lemmas tagged with the `continuity` attribute.\n" +
	"- `contrapose`: transforms the goal into its contrapositive.\n" +
	"- `convert`: The tactic `convert e` is similar to `refine e`, except the type of `e` is not required to exactly match the goal. Any rewrites required to transform `e` into the goal become the new goal state.\n" +
	"- `group`: normalizes expressions in multiplicative groups, without assuming commutativity.\n" +
	"- `have`: `have h : t := p` adds the hypothesis `h : t` to the current goal. If you want to prove `h` in tactic mode, use the syntax `have h : t := by --tactic proof goes here`.\n" +
	"- `linarith`: proves any goal that consists of linear arithemtic.\n" +
	"- `nlinarith`: version of `linarith` that can tolerate some nonlinearity.\n" +
	"- `norm_num`: normalizes numerical expressions.\n" +
	"- `polyrith`: proves polynomial equalities.\n" +
	"- `push_neg`: pushes negations through quantifiers.\n" +
	"- `simp`: uses lemmas and hypotheses tagged with the `simp` attribute to simplify the goal. Use `simp [h1, h2,..., hn]` to add `h1, h2,..., hn` to the list of lemmas used by simp.\n" +
	"- `ring`: tactic for solving goals involving expressions in commutative rings and normalizing expressions in commutative rings.\n"

const proofInstruction = "1. Please write out a plan for proceeding with the proof. Write your plan in English (with LaTeX).\n" +
	"2. Please add the next tactic step to the proof. Include the new version of your (possibly incomplete) proof in a lean code block. Make sure the code block is self-contained and runs. Do not add more than one new tactic step."

const autoformalizeProofInstruction = "1. Please plan out a plan for your formal proof. You can use the natural language proof as a guide, but there is no need to follow it exactly, or at all.\n" +
	"2. Please add the next tactic step to the proof. Include the new version of your (possibly incomplete) proof in a lean code block. Make sure the code block is self-contained and runs. Do not add more than one new tactic step. If you introduce a new lemma in a `have` statement, only supply one tactic step in the proof of the lemma."

// System returns the persona and Lean 4 syntax primer that opens every transcript.
func System() string {
	return systemMessage
}

// ContinueProof asks the oracle to extend an incomplete proof one step at a time.
func ContinueProof(code string) string {
	return fmt.Sprintf("I am going to show you an incomplete proof and the accompanying goal state. "+
		"I will ask you to complete the proof step by step, adding one tactic step in each response. \n\n"+
		"Here is my Lean code so far: \n"+
		"```lean\n%s\n```\n%s", code, proofInstruction)
}

// AutoformalizeProof asks for a formal proof of a given formal statement,
// using the natural language proof as a hint.
func AutoformalizeProof(statement, proof, code string) string {
	return fmt.Sprintf("I am going to show you a natural language proof of a theorem and a corresponding formal theorem statement in Lean 4. "+
		"Your job will be to write a formal proof of the formal theorem statement, using the natural language proof as a hint.\n\n"+
		"Here are the natural language theorem and proof:\n"+
		"%s\n"+
		"Below is the Lean code I would like you to complete.\n"+
		"```lean\n%s\n```\n%s", naturalLanguage(statement, proof), code, autoformalizeProofInstruction)
}

// AutoformalizeStatementAndProof asks the oracle to formalize both the
// statement and the proof, starting from a code template.
func AutoformalizeStatementAndProof(statement, proof, code string) string {
	return fmt.Sprintf("I am going to show you a natural language theorem statement and natural language proof of that theorem. "+
		"Your job will be to formalize the statement of the theorem in Lean 4 and formally prove the statement. \n\n"+
		"Here are the natural language theorem and proof:\n"+
		"%s\n"+
		"Here is the code template for your formalization. \n"+
		"```lean\n%s\n```\n%s\n", naturalLanguage(statement, proof), code, autoformalizeProofInstruction)
}

// NewGoalState presents checker output (goals or errors) as the next step's prompt.
// goalState is embedded verbatim.
func NewGoalState(goalState string) string {
	return fmt.Sprintf("Here is the new goal state:\n```lean\n%s\n```\n%s", goalState, proofInstruction)
}

// RemoveSorry is the fixed instruction sent when a response still contains a sorry.
func RemoveSorry() string {
	return "There is a sorry in your code. Please do not write any code that contains sorries. " +
		"Instead, finish typing at the location where you want to see the goal state. " +
		"Remove the sorry, but do not add any new tactic steps."
}

// MissingCodeBlock asks the oracle to resend its answer with a lean code block.
func MissingCodeBlock() string {
	return "I could not find a lean code block in your response. " +
		"Please reply again, including the new version of your (possibly incomplete) proof in a single ```lean code block.\n" +
		proofInstruction
}

func naturalLanguage(statement, proof string) string {
	return fmt.Sprintf("\\begin{theorem}\n    %s\n\\end{theorem}\n%s", statement, proof)
}
