package database

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SetupTunnel establishes an SSH tunnel to config.Host:config.Port through
// the SSH server and returns a connection string pointing at the local end.
func SetupTunnel(config Config, log *zap.Logger) (string, func(), error) {
	if log == nil {
		log = zap.NewNop()
	}

	key, err := os.ReadFile(config.SSHKey)
	if err != nil {
		return "", nil, fmt.Errorf("unable to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return "", nil, fmt.Errorf("unable to parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if config.SSHKnownHosts != "" {
		hostKeyCallback, err = knownhosts.New(config.SSHKnownHosts)
		if err != nil {
			return "", nil, fmt.Errorf("unable to load known hosts: %w", err)
		}
	} else {
		log.Warn("SSH host key is not verified; set --sshknownhosts to enable checking")
	}

	sshConfig := &ssh.ClientConfig{
		User: config.SSHUser,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
	}

	sshAddr := net.JoinHostPort(config.SSHHost, strconv.Itoa(config.SSHPort))
	sshClient, err := ssh.Dial("tcp", sshAddr, sshConfig)
	if err != nil {
		return "", nil, fmt.Errorf("unable to connect to SSH server: %w", err)
	}

	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		sshClient.Close()
		return "", nil, fmt.Errorf("unable to setup local listener: %w", err)
	}

	localPort := listener.Addr().(*net.TCPAddr).Port
	remoteAddr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))

	log.Debug("SSH tunnel established",
		zap.String("ssh", sshAddr),
		zap.String("remote", remoteAddr),
		zap.Int("local_port", localPort),
	)

	go func() {
		for {
			localConn, err := listener.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					log.Error("error accepting connection", zap.Error(err))
				}
				return
			}

			remoteConn, err := sshClient.Dial("tcp", remoteAddr)
			if err != nil {
				log.Error("error dialing remote server", zap.Error(err))
				localConn.Close()
				continue
			}

			go copyConn(log, localConn, remoteConn)
			go copyConn(log, remoteConn, localConn)
		}
	}()

	cleanup := func() {
		listener.Close()
		sshClient.Close()
	}

	return config.DSN("localhost", localPort), cleanup, nil
}

func copyConn(log *zap.Logger, dst, src net.Conn) {
	defer dst.Close()
	defer src.Close()
	if _, err := io.Copy(dst, src); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debug("error copying connection", zap.Error(err))
	}
}
