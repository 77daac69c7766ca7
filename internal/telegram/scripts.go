package telegram

const (
	messageSelector      = ".tgme_widget_message"
	bubbleSelector       = ".tgme_widget_message_bubble"
	metaSelector         = ".tgme_widget_message_meta"
	textSelector         = ".tgme_widget_message_text"
	forwardedSelector    = ".tgme_widget_message_forwarded_from"
	notSupportedSelector = ".message_media_not_supported_wrap"

	serviceMessageClass = "service_message"
)

const cleanMetaScript = `(e) => {
	e.innerHTML = e.innerHTML.replaceAll('edited', '').replaceAll(',', '')
}`

// Only the last two children are candidates; the platform appends source links there.
const stripFooterScript = `(e, host) => {
	Array.from(e.children || []).slice(-2).forEach((c) => {
		if (c.innerHTML && c.innerHTML.includes(host)) {
			c.remove()
		}
	})
}`

const revealUnsupportedMediaScript = `(e) => {
	const root = e.closest('.tgme_widget_message') || document
	root.querySelectorAll([
		'.tgme_widget_message_video_thumb',
		'.tgme_widget_message_roundvideo_thumb',
		'.tgme_widget_message_photo_wrap',
		'.link_preview_image',
	].join(',')).forEach((t) => {
		t.style.filter = 'none'
		t.style.webkitFilter = 'none'
		t.style.opacity = '1'
		t.style.backgroundColor = 'transparent'
	})
}`

const extractPostScript = `(e) => {
	const text = (selector) => e.querySelector(selector)?.innerText || ''
	const forwarded = e.querySelector('.tgme_widget_message_forwarded_from_name')
	const time = e.querySelector('.tgme_widget_message_date time')
	return {
		dataPost: e.getAttribute('data-post') || '',
		userPhoto: e.querySelector('.tgme_widget_message_user_photo img')?.src || '',
		ownerName: text('.tgme_widget_message_owner_name'),
		body: e.querySelector('.tgme_widget_message_text')?.innerHTML || '',
		views: text('.tgme_widget_message_views'),
		author: text('.tgme_widget_message_from_author'),
		datetime: time?.getAttribute('datetime') || '',
		forwardedHref: forwarded?.href || '',
		forwardedName: forwarded?.innerText || '',
	}
}`
