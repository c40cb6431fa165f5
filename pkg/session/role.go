package session

// IsLeader derives the local role from the shared document. It is a pure
// function of the document's leader field and the local client id, with
// no dependence on history: a client that loses and regains leadership
// looks identical to one that always held it.
func IsLeader(leaderClientID, localClientID string) bool {
	return leaderClientID != "" && leaderClientID == localClientID
}
