package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/keepotp/internal/common"
	"github.com/dmitrijs2005/keepotp/internal/cryptox"
	"github.com/dmitrijs2005/keepotp/internal/filex"
	"github.com/dmitrijs2005/keepotp/internal/kdbx"
	"github.com/dmitrijs2005/keepotp/internal/logging"
	"github.com/dmitrijs2005/keepotp/internal/netx"
	"github.com/dmitrijs2005/keepotp/internal/otp"
	sc "github.com/dmitrijs2005/keepotp/internal/server/config"
	"github.com/dmitrijs2005/keepotp/internal/server/models"
	"github.com/dmitrijs2005/keepotp/internal/server/repositories/repomanager"
)

// Seams for tests: database opening and the AWS client constructors.
var (
	openDatabase = kdbx.Open

	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// ImportSkip records one entry left out of an import and why.
type ImportSkip struct {
	Entry  string `json:"entry"`
	Reason string `json:"reason"`
}

// ImportStats is the report returned by Import.
type ImportStats struct {
	VaultID      string       `json:"vault_id"`
	Imported     int          `json:"imported"`
	TotalEntries int          `json:"total_entries"`
	Skipped      []ImportSkip `json:"skipped,omitempty"`
}

// StoredDescriptor is the persisted form of one extracted sensor: the
// allocated key plus the descriptor fields. The whole set is sealed with
// AES-GCM before it reaches the database.
type StoredDescriptor struct {
	Key       string `json:"key"`
	EntryName string `json:"entry_name"`
	Issuer    string `json:"issuer,omitempty"`
	Account   string `json:"account,omitempty"`
	URL       string `json:"url,omitempty"`
	Secret    []byte `json:"secret"`
	Period    int    `json:"period"`
	Digits    int    `json:"digits"`
}

// Descriptor rebuilds the generator view of the stored record.
func (d *StoredDescriptor) Descriptor() *otp.Descriptor {
	return &otp.Descriptor{
		EntryName: d.EntryName,
		Issuer:    d.Issuer,
		Account:   d.Account,
		URL:       d.URL,
		Secret:    d.Secret,
		Period:    d.Period,
		Digits:    d.Digits,
	}
}

// BuildDescriptors extracts the OTP descriptor set from decoded entries
// in document order: entries carrying field references, duplicate
// secrets and unparseable sources are skipped and reported; entries with
// no OTP source at all are passed over silently. Sensor keys are
// allocated in scan order, so the result is stable for an unchanged
// database.
func BuildDescriptors(entries []kdbx.Entry) ([]StoredDescriptor, []ImportSkip) {
	alloc := otp.NewKeyAllocator()
	seen := make(map[string]struct{})
	var descriptors []StoredDescriptor
	var skipped []ImportSkip

	for _, e := range entries {
		if e.HasFieldReferences() {
			skipped = append(skipped, ImportSkip{Entry: e.Title, Reason: "field reference"})
			continue
		}

		d, err := otp.Extract(e)
		if err != nil {
			if errors.Is(err, otp.ErrNoOtpSource) {
				continue
			}
			skipped = append(skipped, ImportSkip{Entry: e.Title, Reason: "unparseable otp source"})
			continue
		}

		fp := d.Fingerprint()
		if _, dup := seen[fp]; dup {
			skipped = append(skipped, ImportSkip{Entry: e.Title, Reason: "duplicate secret"})
			continue
		}
		seen[fp] = struct{}{}

		descriptors = append(descriptors, StoredDescriptor{
			Key:       alloc.Allocate(d),
			EntryName: d.EntryName,
			Issuer:    d.Issuer,
			Account:   d.Account,
			URL:       d.URL,
			Secret:    d.Secret,
			Period:    d.Period,
			Digits:    d.Digits,
		})
	}

	return descriptors, skipped
}

// VaultService implements the import flow and vault management.
type VaultService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	logger      logging.Logger
	secretKey   []byte
}

func NewVaultService(db *sql.DB, m repomanager.RepositoryManager, cfg *sc.Config, logger logging.Logger) *VaultService {
	return &VaultService{
		db:          db,
		repomanager: m,
		config:      cfg,
		logger:      logger.With("module", "vaults"),
		secretKey:   []byte(cfg.SecretKey),
	}
}

// Import opens an uploaded KeePass database, extracts every OTP entry,
// persists the sealed descriptor set and securely deletes the uploaded
// files. File names are basenames resolved inside the import scratch
// directory, so callers cannot point the service at arbitrary paths.
// With snapshot set, an encrypted copy of the database image is uploaded
// to object storage before the file is destroyed.
func (s *VaultService) Import(ctx context.Context, userID, name, databaseFile, keyFile, password string, snapshot bool) (*ImportStats, error) {
	dbPath, err := filex.ResolveInside(s.config.ImportDir, databaseFile)
	if err != nil {
		return nil, err
	}
	keyPath := ""
	if keyFile != "" {
		if keyPath, err = filex.ResolveInside(s.config.ImportDir, keyFile); err != nil {
			return nil, err
		}
	}
	defer s.destroyUploads(ctx, dbPath, keyPath)

	entries, err := openDatabase(dbPath, password, keyPath)
	if err != nil {
		// sentinel errors pass through unchanged so the UI can tell a
		// bad password from a broken file
		return nil, err
	}

	stats := &ImportStats{TotalEntries: len(entries)}
	descriptors, skipped := BuildDescriptors(entries)
	stats.Skipped = skipped
	for _, skip := range skipped {
		if skip.Reason == "unparseable otp source" {
			s.logger.Warn(ctx, "skipping unparseable otp entry", "entry", skip.Entry)
		}
	}

	if len(descriptors) == 0 {
		return nil, common.ErrNoOtpEntries
	}
	stats.Imported = len(descriptors)

	vaultID := uuid.NewString()
	salt := common.GenerateRandByteArray(32)
	vaultKey := cryptox.DeriveKey(s.secretKey, salt)

	blob, nonce, err := cryptox.Seal(descriptors, vaultKey)
	if err != nil {
		return nil, common.ErrorInternal
	}

	snapshotKey := ""
	if snapshot {
		if snapshotKey, err = s.uploadSnapshot(ctx, vaultID, dbPath, vaultKey); err != nil {
			s.logger.Warn(ctx, "snapshot upload failed", "vault_id", vaultID, "error", err)
			snapshotKey = ""
		}
	}

	vault := &models.Vault{
		ID:          vaultID,
		UserID:      userID,
		Name:        name,
		Blob:        blob,
		Nonce:       nonce,
		Salt:        salt,
		SnapshotKey: snapshotKey,
		EntryCount:  len(descriptors),
	}

	repo := s.repomanager.Vaults(s.db)
	if err := repo.Create(ctx, vault); err != nil {
		return nil, fmt.Errorf("error creating vault: %w", err)
	}

	stats.VaultID = vaultID
	s.logger.Info(ctx, "vault imported",
		"vault_id", vaultID, "imported", stats.Imported,
		"skipped", len(stats.Skipped), "total", stats.TotalEntries)
	return stats, nil
}

// Descriptors unseals a vault's descriptor set.
func (s *VaultService) Descriptors(vault *models.Vault) ([]StoredDescriptor, error) {
	vaultKey := cryptox.DeriveKey(s.secretKey, vault.Salt)
	var descriptors []StoredDescriptor
	if err := cryptox.Open(vault.Blob, vault.Nonce, vaultKey, &descriptors); err != nil {
		return nil, fmt.Errorf("error unsealing vault %s: %w", vault.ID, err)
	}
	return descriptors, nil
}

// List returns the user's vaults.
func (s *VaultService) List(ctx context.Context, userID string) ([]*models.Vault, error) {
	return s.repomanager.Vaults(s.db).ListByUser(ctx, userID)
}

// ListAll returns every vault; the scan loop uses it.
func (s *VaultService) ListAll(ctx context.Context) ([]*models.Vault, error) {
	return s.repomanager.Vaults(s.db).ListAll(ctx)
}

// Delete removes a vault.
func (s *VaultService) Delete(ctx context.Context, userID, vaultID string) error {
	return s.repomanager.Vaults(s.db).Delete(ctx, userID, vaultID)
}

// SnapshotURL returns a presigned GET URL for the encrypted snapshot of
// a vault. Vaults imported without a snapshot yield ErrorNotFound.
func (s *VaultService) SnapshotURL(ctx context.Context, userID, vaultID string) (string, error) {
	vault, err := s.repomanager.Vaults(s.db).GetByID(ctx, userID, vaultID)
	if err != nil {
		return "", err
	}
	if vault.SnapshotKey == "" {
		return "", common.ErrorNotFound
	}
	return s.presignedGetURL(ctx, vault.SnapshotKey)
}

func (s *VaultService) destroyUploads(ctx context.Context, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := filex.SecureDelete(p); err != nil {
			s.logger.Error(ctx, "secure delete failed", "path", p, "error", err)
		}
	}
}

func (s *VaultService) uploadSnapshot(ctx context.Context, vaultID, dbPath string, vaultKey []byte) (string, error) {
	image, err := os.ReadFile(dbPath)
	if err != nil {
		return "", err
	}

	ciphertext, nonce, err := cryptox.SealBytes(image, vaultKey)
	if err != nil {
		return "", err
	}
	// nonce travels in front of the ciphertext
	payload := append(nonce, ciphertext...)

	key := fmt.Sprintf("snapshots/%s/%s", vaultID, uuid.New())
	url, err := s.presignedPutURL(ctx, key)
	if err != nil {
		return "", err
	}
	if err := netx.UploadToPresignedURL(ctx, url, payload); err != nil {
		return "", err
	}
	return key, nil
}

func (s *VaultService) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

func (s *VaultService) presignedPutURL(ctx context.Context, key string) (string, error) {
	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &s.config.S3Bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (s *VaultService) presignedGetURL(ctx context.Context, key string) (string, error) {
	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &s.config.S3Bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
