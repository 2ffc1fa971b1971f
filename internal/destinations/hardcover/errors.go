package hardcover

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRateLimited indicates the API rate limit was exceeded
var ErrRateLimited = errors.New("hardcover API rate limit exceeded")

// ServerError represents a 5xx error from the Hardcover API
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("Hardcover server error: HTTP %d", e.StatusCode)
}

// GraphQLError carries the errors array of a GraphQL response.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "hardcover graphql: " + strings.Join(e.Messages, "; ")
}
