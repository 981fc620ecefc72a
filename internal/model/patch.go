package model

// ApplyPatch sets exactly the fields present in the patch. Storage drivers
// share this so both apply identical allow-list semantics.
func (t *Task) ApplyPatch(p TaskPatch) {
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.AssigneeID != nil {
		t.AssigneeID = *p.AssigneeID
	}
	if p.Link != nil {
		t.Link = *p.Link
	}
	if p.RequiredLinkName != nil {
		t.RequiredLinkName = *p.RequiredLinkName
	}
	if p.RequiresFile != nil {
		t.RequiresFile = *p.RequiresFile
	}
	if p.InstructionsURL != nil {
		t.InstructionsURL = *p.InstructionsURL
	}
	if p.Tags != nil {
		t.Tags = *p.Tags
	}
}

// ApplyPatch sets exactly the fields present in the patch.
func (b *Bundle) ApplyPatch(p BundlePatch) {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Stage != nil {
		b.Stage = *p.Stage
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.Tags != nil {
		b.Tags = *p.Tags
	}
	if p.Emoji != nil {
		b.Emoji = *p.Emoji
	}
	if p.References != nil {
		b.References = *p.References
	}
	if p.BundleLinks != nil {
		b.BundleLinks = *p.BundleLinks
	}
}

// ApplyPatch sets exactly the fields present in the patch.
func (n *Notification) ApplyPatch(p NotificationPatch) {
	if p.Dismissed != nil {
		n.Dismissed = *p.Dismissed
	}
}
