// Package drive binds the relearn workflow to Google Drive: listing image
// files in the active folder, toggling public share permissions, and moving
// processed files into (and back out of) the saved folder.
package drive

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/jonathan/relearn/internal/apperr"
	"github.com/jonathan/relearn/internal/workflow"
)

const (
	// listPageSize bounds a single folder listing.
	listPageSize = 1000
	// savedFolderName is the archive subfolder processed images move to.
	savedFolderName = "saved"
)

// Client implements workflow.Storage over the Drive v3 API.
type Client struct {
	svc      *drive.Service
	folderID string

	mu      sync.Mutex
	savedID string // archive folder ID, resolved on first use
}

// New builds a Drive client from service-account credentials JSON.
// A malformed key or rejected credential surfaces as an AuthError.
func New(ctx context.Context, serviceAccountKey, folderID string) (*Client, error) {
	if folderID == "" {
		return nil, &apperr.ConfigError{Msg: "drive folder ID is empty"}
	}

	svc, err := drive.NewService(ctx,
		option.WithCredentialsJSON([]byte(serviceAccountKey)),
		option.WithScopes(drive.DriveScope),
	)
	if err != nil {
		return nil, &apperr.AuthError{Err: fmt.Errorf("creating drive service: %w", err)}
	}

	return &Client{svc: svc, folderID: folderID}, nil
}

// imageQuery matches non-trashed image files directly under a folder.
func imageQuery(folderID string) string {
	return fmt.Sprintf("'%s' in parents and mimeType contains 'image/' and trashed = false", folderID)
}

// folderQuery matches a non-trashed subfolder by name.
func folderQuery(parentID, name string) string {
	return fmt.Sprintf("'%s' in parents and name = '%s' and mimeType = 'application/vnd.google-apps.folder' and trashed = false", parentID, name)
}

// usercontentLink is the link form Slack can unfurl into an image preview,
// unlike the webViewLink which renders the Drive viewer page.
func usercontentLink(fileID string) string {
	return fmt.Sprintf("https://drive.usercontent.google.com/download?id=%s&export=view&authuser=0", fileID)
}

// ListCandidates lists the image files currently in the active folder.
func (c *Client) ListCandidates(ctx context.Context) ([]workflow.Candidate, error) {
	return c.listImages(ctx, c.folderID)
}

func (c *Client) listImages(ctx context.Context, folderID string) ([]workflow.Candidate, error) {
	resp, err := c.svc.Files.List().
		Q(imageQuery(folderID)).
		Fields("files(id, name, mimeType)").
		PageSize(listPageSize).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("listing files in folder %s: %w", folderID, err)
	}

	candidates := make([]workflow.Candidate, 0, len(resp.Files))
	for _, f := range resp.Files {
		if f.Id == "" {
			continue
		}
		candidates = append(candidates, workflow.Candidate{
			ID:       f.Id,
			Name:     f.Name,
			MimeType: f.MimeType,
		})
	}
	return candidates, nil
}

// PublicLink makes the file viewable by anyone with the link, reusing an
// existing public permission when one is already present.
func (c *Client) PublicLink(ctx context.Context, fileID string) (string, error) {
	perms, err := c.svc.Permissions.List(fileID).
		Fields("permissions(id, type)").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("listing permissions for %s: %w", fileID, err)
	}

	if !hasPublicPermission(perms.Permissions) {
		_, err = c.svc.Permissions.Create(fileID, &drive.Permission{
			Role: "reader",
			Type: "anyone",
		}).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("creating public permission for %s: %w", fileID, err)
		}
	}

	return usercontentLink(fileID), nil
}

func hasPublicPermission(perms []*drive.Permission) bool {
	for _, p := range perms {
		if p != nil && p.Type == "anyone" {
			return true
		}
	}
	return false
}

// Download returns the raw bytes of a file.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fileID, err)
	}
	return data, nil
}

// Archive moves the given files from the active folder into the saved
// folder, one update per file, reporting success and failure per item.
func (c *Client) Archive(ctx context.Context, fileIDs []string) (workflow.MoveReport, error) {
	savedID, err := c.savedFolder(ctx)
	if err != nil {
		return workflow.MoveReport{}, err
	}
	return c.moveAll(ctx, fileIDs, c.folderID, savedID), nil
}

// ReviveArchived moves up to limit files from the saved folder back to the
// active folder, a uniformly random subset when the archive holds more.
func (c *Client) ReviveArchived(ctx context.Context, limit int) (workflow.MoveReport, error) {
	savedID, err := c.savedFolder(ctx)
	if err != nil {
		return workflow.MoveReport{}, err
	}

	archived, err := c.listImages(ctx, savedID)
	if err != nil {
		return workflow.MoveReport{}, err
	}

	ids := make([]string, len(archived))
	for i, c := range archived {
		ids[i] = c.ID
	}
	ids = pickRandom(ids, limit)

	return c.moveAll(ctx, ids, savedID, c.folderID), nil
}

// moveAll reparents each file from one folder to the other. A failure on
// one file never stops the rest.
func (c *Client) moveAll(ctx context.Context, fileIDs []string, fromID, toID string) workflow.MoveReport {
	report := workflow.MoveReport{Succeeded: []string{}, Failed: []workflow.MoveFailure{}}
	for _, id := range fileIDs {
		_, err := c.svc.Files.Update(id, &drive.File{}).
			AddParents(toID).
			RemoveParents(fromID).
			Context(ctx).
			Do()
		if err != nil {
			report.Failed = append(report.Failed, workflow.MoveFailure{ID: id, Reason: err.Error()})
			continue
		}
		report.Succeeded = append(report.Succeeded, id)
	}
	return report
}

// savedFolder returns the archive folder ID, creating the folder under the
// active folder on first use.
func (c *Client) savedFolder(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.savedID != "" {
		return c.savedID, nil
	}

	resp, err := c.svc.Files.List().
		Q(folderQuery(c.folderID, savedFolderName)).
		Fields("files(id)").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("looking up %s folder: %w", savedFolderName, err)
	}
	if len(resp.Files) > 0 && resp.Files[0].Id != "" {
		c.savedID = resp.Files[0].Id
		return c.savedID, nil
	}

	folder, err := c.svc.Files.Create(&drive.File{
		Name:     savedFolderName,
		MimeType: "application/vnd.google-apps.folder",
		Parents:  []string{c.folderID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating %s folder: %w", savedFolderName, err)
	}
	if folder.Id == "" {
		return "", fmt.Errorf("creating %s folder: empty ID in response", savedFolderName)
	}

	c.savedID = folder.Id
	return c.savedID, nil
}

// pickRandom returns up to limit ids chosen uniformly at random.
func pickRandom(ids []string, limit int) []string {
	if limit <= 0 || len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if limit < len(out) {
		out = out[:limit]
	}
	return out
}
