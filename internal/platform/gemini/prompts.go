package gemini

// Prompt templates for the two generation calls. Both instruct the model
// to answer with strict JSON so the response can be parsed into the
// structured shapes the pipeline persists.

const notesPromptTemplate = `Based on the following lecture material, create comprehensive study notes.
Include:
- Key concepts and definitions
- Main topics covered
- Important points to remember
- Summary of each section

Respond with a single JSON object of this exact shape:
{"title": "short descriptive title", "content": "the study notes in markdown", "summary": "2-3 sentence summary"}

Lecture material:
{{.Text}}`

const quizPromptTemplate = `Based on the following lecture material, create a quiz of {{.NumQuestions}} multiple-choice questions.

Respond with a single JSON object of this exact shape:
{"questions": [{"question": "...", "options": ["A", "B", "C", "D"], "correct_answer": 0, "explanation": "why this answer is correct"}]}

Each question must have exactly four options, and correct_answer is the
zero-based index of the right option.

Lecture material:
{{.Text}}`
