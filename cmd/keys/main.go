package keys

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	logger "github.com/sirupsen/logrus"

	"loankeeper/src/security"
)

func printUsage() {
	fmt.Println("Available commands:")
	fmt.Println("  help                             Show this help message")
	fmt.Println("  shutdown                         Exit the application")
	fmt.Println("  encrypt <value>                  Encrypt a credential for env storage")
	fmt.Println("  verify <blob>                    Decrypt a blob and print its length")
	fmt.Println()
}

// Keys is the interactive helper that seals exchange credentials. The
// encrypted blobs go into BINANCE_API_KEY_HASH and BINANCE_API_SECRET_HASH.
type Keys struct{}

func (k *Keys) Start() error {
	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 0, 1024), 1024*1024)

	for {
		fmt.Print("cmd> ")

		if !reader.Scan() {
			return reader.Err()
		}

		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, " ", 2)
		cmd := parts[0]

		switch cmd {

		case "shutdown":
			fmt.Println("Exiting CLI...")
			return nil

		case "help":
			printUsage()

		case "encrypt":
			if len(parts) < 2 {
				printUsage()
				continue
			}

			encrypted, err := security.EncryptString(strings.TrimSpace(parts[1]))
			if err != nil {
				logger.WithError(err).Error("Failed to encrypt value")
				continue
			}
			fmt.Println(encrypted)

		case "verify":
			if len(parts) < 2 {
				printUsage()
				continue
			}

			plaintext, err := security.DecryptString(strings.TrimSpace(parts[1]))
			if err != nil {
				logger.WithError(err).Error("Failed to decrypt blob")
				continue
			}
			fmt.Printf("OK, %d characters\n", len(plaintext))

		default:
			fmt.Println("Unknown command:", cmd)
			printUsage()
		}
	}
}
