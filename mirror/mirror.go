// vxcube-go
// Copyright (c) 2026, DCSO GmbH

// Package mirror copies the results of finished analyses (result archive
// plus report JSON) to an S3 bucket for long-term storage.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"

	"github.com/DCSO/vxcube-go/api"
	"github.com/DCSO/vxcube-go/reporter"

	"github.com/minio/minio-go"
	log "github.com/sirupsen/logrus"
)

// S3Credentials represents a set of data required to access an S3 resource.
type S3Credentials struct {
	Endpoint        string
	AccessKey       string
	SecretAccessKey string
	BucketName      string
	Region          string
}

// ArchiveDownloader fetches the result archive of an analysis. *api.Client
// satisfies this.
type ArchiveDownloader interface {
	DownloadAnalysisArchive(ctx context.Context, analysisID string, w io.Writer) error
}

// MirrorJob contains all data required to locate the staged files of one
// finished analysis.
type MirrorJob struct {
	analysisID       string
	localArchivePath string
	localReportPath  string
}

// Mirror is a component that facilitates the queued upload of analysis
// results to an S3 endpoint.
type Mirror struct {
	// Creds contains the required credentials for the S3 connection.
	Creds S3Credentials
	// UseSSL is true if SSL should be used for upload.
	UseSSL bool
	// ScratchDir is where results are staged before upload.
	ScratchDir string
	// InChan is the channel to enqueue analyses for upload.
	InChan chan MirrorJob
	// ClosedChan is used to signal mirror shutdown.
	ClosedChan chan bool
	// Client is a Minio client connecting to the given endpoint.
	Client *minio.Client
	// Downloader fetches result archives from the sandbox.
	Downloader ArchiveDownloader
}

// Enqueue stages the report JSON and result archive of a finished analysis
// in the scratch directory and queues them for upload.
func (m *Mirror) Enqueue(ctx context.Context, a *api.Analysis) error {
	id := string(a.ID)
	reportPath := path.Join(m.ScratchDir, fmt.Sprintf("%s.report.json", id))
	archivePath := path.Join(m.ScratchDir, fmt.Sprintf("%s_archive.zip", id))

	outJSON, err := json.Marshal(reporter.BuildReport(a))
	if err != nil {
		return err
	}
	if err = os.WriteFile(reportPath, outJSON, 0644); err != nil {
		return err
	}

	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	if err = m.Downloader.DownloadAnalysisArchive(ctx, id, archiveFile); err != nil {
		archiveFile.Close()
		os.Remove(archivePath)
		return err
	}
	if err = archiveFile.Sync(); err != nil {
		archiveFile.Close()
		return err
	}
	archiveFile.Close()

	m.InChan <- MirrorJob{
		analysisID:       id,
		localArchivePath: archivePath,
		localReportPath:  reportPath,
	}
	return nil
}

func (m *Mirror) processUploads() {
	for job := range m.InChan {
		archiveObject := path.Base(job.localArchivePath)
		reportObject := path.Base(job.localReportPath)

		log.Debugf("bucket %s object '%s' localpath %s", m.Creds.BucketName,
			archiveObject, job.localArchivePath)
		size, err := m.Client.FPutObject(m.Creds.BucketName, archiveObject,
			job.localArchivePath, minio.PutObjectOptions{
				ContentType: "application/zip",
			})
		if err != nil {
			log.Errorf("upload of %s failed: %s", archiveObject, err)
			continue
		}
		log.Infof("successfully uploaded %s (size %d)", archiveObject, size)

		size, err = m.Client.FPutObject(m.Creds.BucketName, reportObject,
			job.localReportPath, minio.PutObjectOptions{
				ContentType: "application/json",
			})
		if err != nil {
			log.Errorf("upload of %s failed: %s", reportObject, err)
			continue
		}
		log.Infof("successfully uploaded %s (size %d)", reportObject, size)

		if err = os.Remove(job.localArchivePath); err != nil {
			log.Errorf("could not remove uploaded file %s: %s", job.localArchivePath, err)
		}
		if err = os.Remove(job.localReportPath); err != nil {
			log.Errorf("could not remove uploaded file %s: %s", job.localReportPath, err)
		}
	}
	close(m.ClosedChan)
}

// enqueueBacklog requeues results staged by a previous run that were never
// uploaded.
func (m *Mirror) enqueueBacklog() error {
	re := regexp.MustCompile(`(.+)\.report\.json$`)
	files, err := os.ReadDir(m.ScratchDir)
	if err != nil {
		return err
	}

	for _, f := range files {
		match := re.FindStringSubmatch(f.Name())
		if match == nil {
			continue
		}
		id := match[1]
		archivePath := path.Join(m.ScratchDir, fmt.Sprintf("%s_archive.zip", id))
		if _, err := os.Stat(archivePath); err != nil {
			log.Warnf("skipping backlog entry %s: archive missing", f.Name())
			continue
		}
		log.Debugf("enqueuing staged analysis %s", id)
		m.InChan <- MirrorJob{
			analysisID:       id,
			localArchivePath: archivePath,
			localReportPath:  path.Join(m.ScratchDir, f.Name()),
		}
	}

	return nil
}

// MakeS3Mirror returns a new Mirror for the given credentials and
// environment settings. Staged results left over from a previous run are
// queued for upload immediately.
func MakeS3Mirror(creds S3Credentials, ssl bool, scratchdir string,
	downloader ArchiveDownloader) (*Mirror, error) {
	mirror := &Mirror{
		Creds:      creds,
		UseSSL:     ssl,
		ScratchDir: scratchdir,
		ClosedChan: make(chan bool),
		InChan:     make(chan MirrorJob, 1000),
		Downloader: downloader,
	}

	client, err := minio.New(creds.Endpoint, creds.AccessKey, creds.SecretAccessKey, ssl)
	if err != nil {
		return nil, err
	}
	mirror.Client = client

	if err = mirror.enqueueBacklog(); err != nil {
		return nil, err
	}

	go mirror.processUploads()

	return mirror, nil
}

// Stop causes the mirror to cease processing enqueued analyses after
// draining the queue.
func (m *Mirror) Stop() {
	close(m.InChan)
	<-m.ClosedChan
}
