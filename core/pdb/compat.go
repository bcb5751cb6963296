package pdb

// compatProcs maps deprecated procedure names to their replacements.
var compatProcs = []struct{ oldName, newName string }{
	{"picman-blend", "picman-edit-blend"},
	{"picman-brushes-list", "picman-brushes-get-list"},
	{"picman-bucket-fill", "picman-edit-bucket-fill"},
	{"picman-channel-delete", "picman-item-delete"},
	{"picman-channel-get-name", "picman-item-get-name"},
	{"picman-channel-get-tattoo", "picman-item-get-tattoo"},
	{"picman-channel-get-visible", "picman-item-get-visible"},
	{"picman-channel-set-name", "picman-item-set-name"},
	{"picman-channel-set-tattoo", "picman-item-set-tattoo"},
	{"picman-channel-set-visible", "picman-item-set-visible"},
	{"picman-color-picker", "picman-image-pick-color"},
	{"picman-convert-grayscale", "picman-image-convert-grayscale"},
	{"picman-convert-indexed", "picman-image-convert-indexed"},
	{"picman-convert-rgb", "picman-image-convert-rgb"},
	{"picman-crop", "picman-image-crop"},
	{"picman-drawable-bytes", "picman-drawable-bpp"},
	{"picman-drawable-image", "picman-drawable-get-image"},
	{"picman-image-active-drawable", "picman-image-get-active-drawable"},
	{"picman-image-floating-selection", "picman-image-get-floating-sel"},
	{"picman-layer-delete", "picman-item-delete"},
	{"picman-layer-get-linked", "picman-item-get-linked"},
	{"picman-layer-get-name", "picman-item-get-name"},
	{"picman-layer-get-tattoo", "picman-item-get-tattoo"},
	{"picman-layer-get-visible", "picman-item-get-visible"},
	{"picman-layer-mask", "picman-layer-get-mask"},
	{"picman-layer-set-linked", "picman-item-set-linked"},
	{"picman-layer-set-name", "picman-item-set-name"},
	{"picman-layer-set-tattoo", "picman-item-set-tattoo"},
	{"picman-layer-set-visible", "picman-item-set-visible"},
	{"picman-palette-refresh", "picman-palettes-refresh"},
	{"picman-patterns-list", "picman-patterns-get-list"},
	{"picman-temp-PDB-name", "picman-procedural-db-temp-name"},
	{"picman-undo-push-group-end", "picman-image-undo-group-end"},
	{"picman-undo-push-group-start", "picman-image-undo-group-start"},
	{"picman-brushes-get-opacity", "picman-context-get-opacity"},
	{"picman-brushes-get-paint-mode", "picman-context-get-paint-mode"},
	{"picman-brushes-set-brush", "picman-context-set-brush"},
	{"picman-brushes-set-opacity", "picman-context-set-opacity"},
	{"picman-brushes-set-paint-mode", "picman-context-set-paint-mode"},
	{"picman-channel-ops-duplicate", "picman-image-duplicate"},
	{"picman-channel-ops-offset", "picman-drawable-offset"},
	{"picman-gradients-get-active", "picman-context-get-gradient"},
	{"picman-gradients-get-gradient", "picman-context-get-gradient"},
	{"picman-gradients-set-active", "picman-context-set-gradient"},
	{"picman-gradients-set-gradient", "picman-context-set-gradient"},
	{"picman-image-get-cmap", "picman-image-get-colormap"},
	{"picman-image-set-cmap", "picman-image-set-colormap"},
	{"picman-palette-get-background", "picman-context-get-background"},
	{"picman-palette-get-foreground", "picman-context-get-foreground"},
	{"picman-palette-set-background", "picman-context-set-background"},
	{"picman-palette-set-default-colors", "picman-context-set-default-colors"},
	{"picman-palette-set-foreground", "picman-context-set-foreground"},
	{"picman-palette-swap-colors", "picman-context-swap-colors"},
	{"picman-palettes-set-palette", "picman-context-set-palette"},
	{"picman-patterns-set-pattern", "picman-context-set-pattern"},
	{"picman-selection-clear", "picman-selection-none"},
	{"picman-layer-get-preserve-trans", "picman-layer-get-lock-alpha"},
	{"picman-layer-set-preserve-trans", "picman-layer-set-lock-alpha"},
	{"picman-drawable-is-valid", "picman-item-is-valid"},
	{"picman-drawable-is-layer", "picman-item-is-layer"},
	{"picman-drawable-is-text-layer", "picman-item-is-text-layer"},
	{"picman-drawable-is-layer-mask", "picman-item-is-layer-mask"},
	{"picman-drawable-is-channel", "picman-item-is-channel"},
	{"picman-drawable-delete", "picman-item-delete"},
	{"picman-drawable-get-image", "picman-item-get-image"},
	{"picman-drawable-get-name", "picman-item-get-name"},
	{"picman-drawable-set-name", "picman-item-set-name"},
	{"picman-drawable-get-visible", "picman-item-get-visible"},
	{"picman-drawable-set-visible", "picman-item-set-visible"},
	{"picman-drawable-get-linked", "picman-item-get-linked"},
	{"picman-drawable-set-linked", "picman-item-set-linked"},
	{"picman-drawable-get-tattoo", "picman-item-get-tattoo"},
	{"picman-drawable-set-tattoo", "picman-item-set-tattoo"},
	{"picman-drawable-parasite-find", "picman-item-get-parasite"},
	{"picman-drawable-parasite-attach", "picman-item-attach-parasite"},
	{"picman-drawable-parasite-detach", "picman-item-detach-parasite"},
	{"picman-drawable-parasite-list", "picman-item-get-parasite-list"},
	{"picman-image-get-layer-position", "picman-image-get-item-position"},
	{"picman-image-raise-layer", "picman-image-raise-item"},
	{"picman-image-lower-layer", "picman-image-lower-item"},
	{"picman-image-raise-layer-to-top", "picman-image-raise-item-to-top"},
	{"picman-image-lower-layer-to-bottom", "picman-image-lower-item-to-bottom"},
	{"picman-image-get-channel-position", "picman-image-get-item-position"},
	{"picman-image-raise-channel", "picman-image-raise-item"},
	{"picman-image-lower-channel", "picman-image-lower-item"},
	{"picman-image-get-vectors-position", "picman-image-get-item-position"},
	{"picman-image-raise-vectors", "picman-image-raise-item"},
	{"picman-image-lower-vectors", "picman-image-lower-item"},
	{"picman-image-raise-vectors-to-top", "picman-image-raise-item-to-top"},
	{"picman-image-lower-vectors-to-bottom", "picman-image-lower-item-to-bottom"},
	{"picman-vectors-is-valid", "picman-item-is-valid"},
	{"picman-vectors-get-image", "picman-item-get-image"},
	{"picman-vectors-get-name", "picman-item-get-name"},
	{"picman-vectors-set-name", "picman-item-set-name"},
	{"picman-vectors-get-visible", "picman-item-get-visible"},
	{"picman-vectors-set-visible", "picman-item-set-visible"},
	{"picman-vectors-get-linked", "picman-item-get-linked"},
	{"picman-vectors-set-linked", "picman-item-set-linked"},
	{"picman-vectors-get-tattoo", "picman-item-get-tattoo"},
	{"picman-vectors-set-tattoo", "picman-item-set-tattoo"},
	{"picman-vectors-parasite-find", "picman-item-get-parasite"},
	{"picman-vectors-parasite-attach", "picman-item-attach-parasite"},
	{"picman-vectors-parasite-detach", "picman-item-detach-parasite"},
	{"picman-vectors-parasite-list", "picman-item-get-parasite-list"},
	{"picman-image-parasite-find", "picman-image-get-parasite"},
	{"picman-image-parasite-attach", "picman-image-attach-parasite"},
	{"picman-image-parasite-detach", "picman-image-detach-parasite"},
	{"picman-image-parasite-list", "picman-image-get-parasite-list"},
	{"picman-parasite-find", "picman-get-parasite"},
	{"picman-parasite-attach", "picman-attach-parasite"},
	{"picman-parasite-detach", "picman-detach-parasite"},
	{"picman-parasite-list", "picman-get-parasite-list"},
}

// RegisterCompatProcs loads the built-in alias table unless compat mode is
// off.
func RegisterCompatProcs(p *PDB) {
	if p.compatMode == CompatOff {
		return
	}
	for _, c := range compatProcs {
		p.RegisterCompatName(c.oldName, c.newName)
	}
}
