package domain

import "errors"

var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyQuery is returned for a blank question.
	ErrEmptyQuery = errors.New("empty query")

	// ErrInvalidURL is returned for a URL that is not absolute http(s).
	ErrInvalidURL = errors.New("invalid url")

	// ErrCrawlInProgress indicates a crawl session is already running.
	ErrCrawlInProgress = errors.New("crawl already in progress")

	// ErrVectorBackendUnavailable indicates the embedding model or vector store
	// could not serve a request. Retrieval falls back to TF-IDF.
	ErrVectorBackendUnavailable = errors.New("vector backend unavailable")

	// ErrLLMUnavailable indicates the generative model could not produce an answer.
	ErrLLMUnavailable = errors.New("LLM service unavailable")
)
