package vault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type FileVaultTestSuite struct {
	suite.Suite
	dir   string
	vault Vault
}

func (s *FileVaultTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	v, err := Open("file", s.dir)
	s.Require().NoError(err)
	s.vault = v
}

func (s *FileVaultTestSuite) TestGetMissing() {
	_, err := s.vault.Get("weread")
	s.Require().True(errors.Is(err, ErrNotFound))
}

func (s *FileVaultTestSuite) TestSetGetRoundTrip() {
	s.Require().NoError(s.vault.Set("weread", "wr_skey=abc; wr_vid=42"))

	secret, err := s.vault.Get("weread")
	s.Require().NoError(err)
	s.Equal("wr_skey=abc; wr_vid=42", secret)
}

func (s *FileVaultTestSuite) TestOverwrite() {
	s.Require().NoError(s.vault.Set("weread", "old"))
	s.Require().NoError(s.vault.Set("weread", "new"))

	secret, err := s.vault.Get("weread")
	s.Require().NoError(err)
	s.Equal("new", secret)
}

func (s *FileVaultTestSuite) TestDelete() {
	s.Require().NoError(s.vault.Set("weread", "secret"))
	s.Require().NoError(s.vault.Delete("weread"))

	_, err := s.vault.Get("weread")
	s.Require().True(errors.Is(err, ErrNotFound))
}

func (s *FileVaultTestSuite) TestDeleteMissingIsNoop() {
	s.Require().NoError(s.vault.Delete("weread"))
}

func (s *FileVaultTestSuite) TestProvidersAreIndependent() {
	s.Require().NoError(s.vault.Set("weread", "a"))
	s.Require().NoError(s.vault.Set("sogou", "b"))
	s.Require().NoError(s.vault.Delete("weread"))

	secret, err := s.vault.Get("sogou")
	s.Require().NoError(err)
	s.Equal("b", secret)
}

func (s *FileVaultTestSuite) TestFilesAreSealedAndPrivate() {
	s.Require().NoError(s.vault.Set("weread", "wr_skey=topsecret"))

	sealed, err := os.ReadFile(filepath.Join(s.dir, "sessions.enc"))
	s.Require().NoError(err)
	s.NotContains(string(sealed), "topsecret")

	info, err := os.Stat(filepath.Join(s.dir, "sessions.enc"))
	s.Require().NoError(err)
	s.Equal(os.FileMode(0o600), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(s.dir, "vault.key"))
	s.Require().NoError(err)
	s.Equal(os.FileMode(0o600), info.Mode().Perm())
}

func (s *FileVaultTestSuite) TestReopenKeepsData() {
	s.Require().NoError(s.vault.Set("weread", "persists"))

	reopened, err := Open("file", s.dir)
	s.Require().NoError(err)
	secret, err := reopened.Get("weread")
	s.Require().NoError(err)
	s.Equal("persists", secret)
}

func (s *FileVaultTestSuite) TestBackendName() {
	s.Equal("file", s.vault.Backend())
}

func TestFileVaultTestSuite(t *testing.T) {
	suite.Run(t, new(FileVaultTestSuite))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("etcd", t.TempDir())
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
