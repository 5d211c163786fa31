package store

import (
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// sshAgentAuth returns an ssh.AuthMethod backed by a running ssh-agent, if
// SSH_AUTH_SOCK is set and reachable. Store records never carry a private
// key, so the agent is the only non-password credential source available
// to the sftp transport.
func sshAgentAuth() (ssh.AuthMethod, bool) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, false
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, false
	}
	client := agent.NewClient(conn)
	return ssh.PublicKeysCallback(client.Signers), true
}
