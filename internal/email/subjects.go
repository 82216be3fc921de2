package email

const subjectRegistrationInvite = "Granite Manager"
