package mcpserver

// EntryGuide tells LLM consumers how entries are indexed so that written
// text is retrievable later.
const EntryGuide = `# Reverie Entry Guide

Entries are free-form prose owned by one user (owner_id).

## Indexing

- Text is split into sentences. A sentence ends at ".", "?" or "!" followed by
  whitespace and a capital letter. Abbreviations such as "Dr." and initials
  do not end a sentence.
- Every sentence is embedded separately. Short, self-contained sentences make
  semantic search more precise.
- Keyword search matches any word of the query longer than two characters as
  a case-insensitive substring of the entry text.

## Fields

- ` + "`text`" + ` (required): up to 100000 characters, not blank.
- ` + "`entry_date`" + ` (optional): YYYY-MM-DD. Defaults to today (UTC).
- ` + "`entry_id`" + ` (optional): omit to create; pass an existing id to replace the
  text of that entry.
- ` + "`if_match`" + ` (optional): the checksum returned by read_entry. The write is
  rejected when the entry changed since it was read.

## Results

search_journal returns entries ordered by distance (lower is closer). Keyword
hits always rank above purely semantic matches.
`
