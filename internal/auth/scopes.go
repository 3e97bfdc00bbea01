package auth

// Known OAuth scopes used by the sales API.
const (
	ScopeRecordsRead  = "records:read"
	ScopeRecordsWrite = "records:write"
	ScopeTargetsRead  = "targets:read"
	ScopeTargetsWrite = "targets:write"
	ScopeSummaryRead  = "summary:read"
)

// DefaultScopes is the scope set granted to every signed-in user.
func DefaultScopes() []string {
	return []string{
		ScopeRecordsRead,
		ScopeRecordsWrite,
		ScopeTargetsRead,
		ScopeTargetsWrite,
		ScopeSummaryRead,
	}
}
