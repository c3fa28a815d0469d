package capture

import (
	"ad-capture-pipeline/analysis"
	"ad-capture-pipeline/config"
	"ad-capture-pipeline/models"
)

// reconcile merges the local preliminary verdict, the upload outcome and
// the remote analysis response into the final status and message.
// Precedence is evaluated in order, first match wins:
//
//  1. A positively-confirmed compliant code scan that did not also report
//     "no target detected" is a success, message passed through verbatim.
//  2. Any remote status is final; the remote message is used when present,
//     a canned one otherwise.
//  3. No remote response at all: a local policy violation wins, then a
//     successful upload counts as stored, and only with nothing to show
//     does the submission become an error.
func reconcile(pre preliminary, artifactURL string, resp *analysis.Response, msgs config.Messages) (models.ReportStatus, string) {
	if resp != nil && resp.CodeVerified() && !resp.NoTarget() {
		return models.StatusSuccess, resp.Message
	}

	if resp != nil {
		status := resp.ReportStatus()
		if resp.Message != "" {
			return status, resp.Message
		}
		if status == models.StatusSuccess {
			return status, msgs.AnalysisOK
		}
		return status, msgs.AnalysisFlagged
	}

	if pre.status == models.StatusViolation {
		return models.StatusViolation, pre.message
	}
	if artifactURL != "" {
		return models.StatusSuccess, msgs.Stored
	}
	return models.StatusError, msgs.UploadFailed
}
