package util

const (
	// package keys
	PackageKey = "package"

	PackageMain        = "main"
	PackageAlbum       = "album"
	PackageDedup       = "dedup"
	PackageDerivative  = "derivative"
	PackageFingerprint = "fingerprint"
	PackageGallery     = "gallery"
	PackageGeometry    = "geometry"
	PackageMeta        = "meta"
	PackagePatron      = "patron"
	PackagePhoto       = "photo"
	PackagePicture     = "picture"
	PackagePipeline    = "pipeline"
	PackageSite        = "site"
	PackageStorage     = "storage"

	// component keys
	ComponentKey = "component"

	ComponentMain          = "main"
	ComponentGallery       = "gallery"
	ComponentAlbumService  = "album service"
	ComponentPatronService = "patron service"
	ComponentPhotoStore    = "photo store"
	ComponentDedup         = "duplicate detector"
	ComponentDerivatives   = "derivative generator"
	ComponentMetadata      = "metadata extractor"
	ComponentOrchestrator  = "upload orchestrator"
	ComponentImport        = "folder import"
	ComponentSiteConfig    = "site config"
	ComponentUploadHandler = "upload handler"

	ComponentLocalStorage = "local storage"
	ComponentObjectStore  = "object storage"
	ComponentDriveStorage = "drive storage"

	// service keys
	ServiceKey = "service"

	ServiceGallery  = "halide"
	ServiceS2s      = "ran"
	ServiceIdentity = "shaw"
)
