package model

import "maps"

// Format is the primary output format of a generated artifact.
type Format string

const (
	FormatPDF Format = "PDF"
	FormatXML Format = "XML"
)

func (f Format) IsValid() bool {
	switch f {
	case FormatPDF, FormatXML:
		return true
	}
	return false
}

// GeneratedArtifact is the result of generating the document for one request.
// It is owned by exactly one RequestRecord.
type GeneratedArtifact struct {
	PrimaryPath   string `json:"primaryPath"`
	Format        Format `json:"format"`
	SecondaryPath string `json:"secondaryPath,omitempty"` // companion rendering for XML output
}

// ViewPath returns the file a reader should open: the primary file for PDF
// output, the companion rendering otherwise.
func (a *GeneratedArtifact) ViewPath() string {
	if a.Format == FormatPDF || a.SecondaryPath == "" {
		return a.PrimaryPath
	}
	return a.SecondaryPath
}

// Files lists every file belonging to the artifact, primary first.
func (a *GeneratedArtifact) Files() []string {
	files := []string{a.PrimaryPath}
	if a.SecondaryPath != "" {
		files = append(files, a.SecondaryPath)
	}
	return files
}

// RequestRecord is one request for payment.
type RequestRecord struct {
	ID         string             `json:"id"`
	Attributes map[string]string  `json:"attributes"`
	Selected   bool               `json:"selected"`
	Artifact   *GeneratedArtifact `json:"artifact,omitempty"`
}

// Clone returns a deep copy so callers never share attribute maps or
// artifacts with the record they copied from.
func (r RequestRecord) Clone() RequestRecord {
	out := RequestRecord{
		ID:         r.ID,
		Attributes: maps.Clone(r.Attributes),
		Selected:   r.Selected,
	}
	if r.Artifact != nil {
		a := *r.Artifact
		out.Artifact = &a
	}
	return out
}

// Eligible reports whether the record can be dispatched.
func (r *RequestRecord) Eligible() bool {
	return r.Selected && r.Artifact != nil
}
