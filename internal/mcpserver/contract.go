package mcpserver

// candidateContract describes the JSON candidate record that clients
// submit for ingestion, and the decision record they get back.
const candidateContract = `# Laguz Candidate Record Contract

Every candidate submitted to Laguz MUST follow this structure.

## Structure

` + "```" + `json
{
  "source_url": "https://github.com/acme/widget",
  "source_type": "github",
  "content_type": "code_snippet",
  "raw_content": "full text or HTML of the candidate",
  "metadata": {
    "title": "Widget",
    "stars": "1200",
    "author": "acme"
  }
}
` + "```" + `

## Rules

1. **` + "`" + `source_url` + "`" + ` is required.** It identifies the candidate: two
   submissions whose URLs canonicalize to the same value are the same loop.
   Scheme defaults to https, the fragment is dropped, the host is lowercased
   and a leading www. is trimmed.
2. **` + "`" + `source_type` + "`" + ` is required.** One of ` + "`" + `github` + "`" + `, ` + "`" + `reddit` + "`" + `,
   ` + "`" + `forum` + "`" + `, ` + "`" + `manual` + "`" + `, ` + "`" + `generic` + "`" + `.
3. **` + "`" + `content_type` + "`" + `** is optional: ` + "`" + `code_snippet` + "`" + `, ` + "`" + `article` + "`" + `,
   ` + "`" + `html` + "`" + ` or ` + "`" + `discussion` + "`" + `. When ` + "`" + `html` + "`" + `, markup is stripped
   before analysis.
4. **` + "`" + `raw_content` + "`" + `** may be empty. An empty candidate still flows through
   the pipeline; its features are marked degraded and the decision lands in
   review rather than being refused.
5. **` + "`" + `metadata` + "`" + `** is a flat string map. Recognized keys: ` + "`" + `title` + "`" + `,
   ` + "`" + `description` + "`" + `, ` + "`" + `author` + "`" + `, ` + "`" + `created_at` + "`" + ` (RFC 3339),
   ` + "`" + `stars` + "`" + ` (github), ` + "`" + `upvotes` + "`" + ` (reddit). Unknown keys are stored
   but ignored by scoring.
6. **Resubmission is safe.** Ingesting the same URL again returns the existing
   decision instead of running the pipeline twice.

## Decision

The pipeline answers with a decision record:

` + "```" + `json
{
  "loop_id": "sha-256 of the canonical URL",
  "disposition": "approved | rejected | needs_review",
  "score": 0.72,
  "confidence": 0.61,
  "reasons": ["High popularity (score: 0.85)", "Contains code (complexity: 0.40)"],
  "duplicate_of": "loop id of the near-duplicate, when one was found"
}
` + "```" + `

A candidate that scores above the approve threshold but closely matches an
already-approved loop is routed to review, never silently approved.
`
